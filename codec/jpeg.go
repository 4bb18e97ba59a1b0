package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/geoslide/tiffcore/ifd"
)

// defaultJPEGQuality is used when opts.quality is unset (spec.md's
// quality ∈ (0,1] option defaults to 0, meaning "caller didn't ask").
const defaultJPEGQuality = 0.9

// jpegCodec implements compression code 7 (baseline JPEG), via the standard
// library's image/jpeg. No repo in the donor corpus carries a general-
// purpose baseline JPEG codec with a plain bytes-in/bytes-out API: the
// JPEG-adjacent examples (cocosip-go-dicom-codec, jpfielding-dicos.go,
// mrjoshuak-go-jpeg2000) are all JPEG-2000-specific, and the plain-JPEG
// examples (ausocean-av, jrm-1535-jpeg) are thin wrappers around this same
// stdlib package. Using image/jpeg directly here is therefore the
// std-library exception spec.md's process calls for: no third-party
// baseline encoder/decoder exists in the retrieved corpus to wire instead.
type jpegCodec struct{}

func (jpegCodec) Name() string { return "jpeg" }

func (jpegCodec) Encode(raw []byte, opts Options) ([]byte, error) {
	img, err := toImage(raw, opts)
	if err != nil {
		return nil, err
	}
	q := opts.quality
	if q <= 0 {
		q = defaultJPEGQuality
	}
	quality := int(math.Round(q * 100))
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (jpegCodec) Decode(compressed []byte, rawLen int, opts Options) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	return fromImage(img, opts)
}

// toImage wraps 8-bit gray or RGB chunky sample bytes in an image.Image,
// the subset of TIFF's sample space baseline JPEG (and image/jpeg) support.
func toImage(raw []byte, opts Options) (image.Image, error) {
	if opts.sampleType != ifd.SampleTypeUint8 {
		return nil, fmt.Errorf("jpeg codec: only 8-bit unsigned samples are supported, got %v", opts.sampleType)
	}
	bounds := image.Rect(0, 0, opts.width, opts.height)
	switch opts.samplesPerPixel {
	case 1:
		img := &image.Gray{Pix: raw, Stride: opts.width, Rect: bounds}
		return img, nil
	case 3:
		rgba := image.NewRGBA(bounds)
		for i := 0; i < opts.width*opts.height; i++ {
			rgba.Pix[i*4] = raw[i*3]
			rgba.Pix[i*4+1] = raw[i*3+1]
			rgba.Pix[i*4+2] = raw[i*3+2]
			rgba.Pix[i*4+3] = 0xff
		}
		return rgba, nil
	default:
		return nil, fmt.Errorf("jpeg codec: unsupported samples-per-pixel %d", opts.samplesPerPixel)
	}
}

// fromImage flattens a decoded image back into chunky sample bytes matching
// opts' sample geometry.
func fromImage(img image.Image, opts Options) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*opts.samplesPerPixel)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			switch opts.samplesPerPixel {
			case 1:
				out = append(out, byte(r>>8))
			case 3:
				out = append(out, byte(r>>8), byte(g>>8), byte(bl>>8))
			default:
				return nil, fmt.Errorf("jpeg codec: unsupported samples-per-pixel %d", opts.samplesPerPixel)
			}
		}
	}
	return out, nil
}
