package codec

import (
	"fmt"

	"github.com/geoslide/tiffcore/ifd"
	"github.com/geoslide/tiffcore/tifferr"
)

// Codec compresses/decompresses one tile or strip's sample bytes, after any
// predictor/interleave transform has already been applied (spec.md §4.2:
// "the codec operates beneath the predictor and interleave stages").
type Codec interface {
	Name() string
	Encode(raw []byte, opts Options) ([]byte, error)
	Decode(compressed []byte, rawLen int, opts Options) ([]byte, error)
}

var builtins = map[ifd.CompressionEnum]Codec{
	ifd.CompressionNone:         noneCodec{},
	ifd.CompressionPackBits:     packBitsCodec{},
	ifd.CompressionLZW:          lzwCodec{},
	ifd.CompressionDeflate:      deflateCodec{},
	ifd.CompressionDeflateAdobe: deflateCodec{},
	ifd.CompressionCCITTRLE:     ccittCodec{variant: ccittG3},
	ifd.CompressionCCITTFax3:    ccittCodec{variant: ccittG3},
	ifd.CompressionCCITTFax4:    ccittCodec{variant: ccittG4},
	ifd.CompressionJPEG:         jpegCodec{},
	ifd.CompressionJPEG2000:     jp2kCodec{},
	ifd.CompressionLosslessJPEG: losslessJPEGCodec{},
}

// external holds codecs registered for vendor/extension compression codes
// that have no baseline TIFF enum value (spec.md §4.2's "pluggable external
// codec registry keyed by the raw compression code").
var external = map[uint16]Codec{}

// RegisterExternal installs codec for a raw compression code that the
// built-in catalog does not serve; registering a code the built-in catalog
// already serves panics. Used by callers that want to handle a
// vendor-specific or experimental compression scheme without forking this
// package.
func RegisterExternal(rawCode uint16, c Codec) {
	if _, ok := builtins[ifd.DecodeCompression(rawCode).Enum]; ok {
		panic(fmt.Sprintf("codec: compression code %d is already served by the built-in catalog", rawCode))
	}
	external[rawCode] = c
}

// Lookup resolves the codec for a raw tag-259 compression code: external
// registrations first, then the built-in catalog keyed by the decoded enum
// (the two never share a code, see RegisterExternal).
func Lookup(rawCode uint16) (Codec, error) {
	if c, ok := external[rawCode]; ok {
		return c, nil
	}
	enum := ifd.DecodeCompression(rawCode).Enum
	if c, ok := builtins[enum]; ok {
		return c, nil
	}
	return nil, tifferr.New(tifferr.KindUnsupportedFeature, fmt.Sprintf("no codec registered for compression code %d", rawCode))
}

// Encode resolves and runs the codec for opts' compression code, recording
// per-codec metrics.
func Encode(raw []byte, opts Options) ([]byte, error) {
	c, err := Lookup(opts.rawCode)
	if err != nil {
		return nil, err
	}
	encodeCalls.WithLabelValues(c.Name()).Inc()
	encodeBytesIn.WithLabelValues(c.Name()).Add(float64(len(raw)))
	out, err := c.Encode(raw, opts)
	if err != nil {
		return nil, tifferr.Wrap(tifferr.KindUnsupportedFeature, "codec encode "+c.Name(), err)
	}
	return out, nil
}

// Decode resolves and runs the codec for opts' compression code. rawLen, if
// >0, is the expected decompressed length (known from tile geometry),
// letting fixed-size codecs (None, PackBits) preallocate.
func Decode(compressed []byte, rawLen int, opts Options) ([]byte, error) {
	c, err := Lookup(opts.rawCode)
	if err != nil {
		return nil, err
	}
	decodeCalls.WithLabelValues(c.Name()).Inc()
	out, err := c.Decode(compressed, rawLen, opts)
	if err != nil {
		return nil, tifferr.Wrap(tifferr.KindUnsupportedFeature, "codec decode "+c.Name(), err)
	}
	decodeBytesOut.WithLabelValues(c.Name()).Add(float64(len(out)))
	return out, nil
}
