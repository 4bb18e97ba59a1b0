package codec

import "fmt"

// Interleave packs per-band planes (one contiguous run per sample, as
// produced by a planar-separated source) into chunky (pixel-interleaved)
// order, per spec.md §4.2's "interleave/separate transform". planes must
// have opts.samplesPerPixel entries, each width*height*byteWidth bytes.
func Interleave(planes [][]byte, opts Options) ([]byte, error) {
	bw := sampleByteWidth(opts)
	spp := opts.samplesPerPixel
	if len(planes) != spp {
		return nil, fmt.Errorf("codec: interleave expects %d planes, got %d", spp, len(planes))
	}
	n := opts.width * opts.height
	out := make([]byte, n*spp*bw)
	for px := 0; px < n; px++ {
		for s := 0; s < spp; s++ {
			copy(out[(px*spp+s)*bw:], planes[s][px*bw:px*bw+bw])
		}
	}
	return out, nil
}

// Separate splits chunky (pixel-interleaved) bytes into one contiguous
// plane per sample, the inverse of Interleave.
func Separate(chunky []byte, opts Options) ([][]byte, error) {
	bw := sampleByteWidth(opts)
	spp := opts.samplesPerPixel
	n := opts.width * opts.height
	if len(chunky) != n*spp*bw {
		return nil, fmt.Errorf("codec: separate expects %d bytes, got %d", n*spp*bw, len(chunky))
	}
	planes := make([][]byte, spp)
	for s := range planes {
		planes[s] = make([]byte, n*bw)
	}
	for px := 0; px < n; px++ {
		for s := 0; s < spp; s++ {
			copy(planes[s][px*bw:px*bw+bw], chunky[(px*spp+s)*bw:])
		}
	}
	return planes, nil
}

func sampleByteWidth(opts Options) int {
	if bw := opts.sampleType.ByteWidth(); bw > 0 {
		return bw
	}
	return 1
}
