// Package codec implements the strip/tile payload codec pipeline: the
// built-in compression catalog, the horizontal-differencing predictor, the
// chunky/planar interleave transform, and a pluggable external-codec
// registry (spec.md §4.2, §6.2). The FillOrder tag value is carried in
// Options, but no stage of the pipeline reverses bit order.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/geoslide/tiffcore/ifd"
)

// Options is an immutable per-tile/strip codec configuration, built only
// through Option functions (spec.md §9: "Options objects... immutable
// configuration structs constructed via a builder"), directly generalizing
// the teacher's TilerOption/StripperOption functional-options pattern
// (tiler.go, stripper.go) from pyramid-geometry options to codec options.
type Options struct {
	compression ifd.CompressionEnum
	rawCode     uint16

	predictor ifd.Predictor
	fillOrder ifd.FillOrder
	planar    ifd.PlanarConfiguration

	sampleType      ifd.SampleType
	samplesPerPixel int
	width, height   int

	// order is the tile's on-disk byte order (spec.md §4.2: "respecting the
	// tile's byte order"), consulted by the horizontal predictor's
	// multi-byte sample arithmetic.
	order binary.ByteOrder

	// losslessLevel is the generic lossless_level ∈ [0,1] option (spec.md
	// §4.2/§6.3), mapped to a codec-native compression level by each codec
	// that takes one (currently Deflate).
	losslessLevel float64
	// quality is the generic quality ∈ (0,1] option. 0 means "not set":
	// JPEG falls back to a fixed default, JPEG-2000 treats it as a request
	// for lossless (reversible) encoding instead of a lossy rate.
	quality float64

	// codeBlockSize is the JPEG-2000 code-block edge length in pixels
	// (spec.md §6.3 code_block_size), default 64.
	codeBlockSize int
	// numDecompositionLevels is the JPEG-2000 wavelet decomposition depth
	// (spec.md §6.3 num_decomposition_levels), default 5.
	numDecompositionLevels int
	// resolutionLevel is the JPEG-2000 decode-side resolution reduction
	// (spec.md §6.3 resolution_level): 0 is full resolution, 1 half, etc.
	resolutionLevel int
}

// Option mutates an in-progress Options during New; each validates its own
// argument, matching the teacher's ErrInvalidOption pattern.
type Option func(*Options) error

// ErrInvalidOption is returned by New when an Option's argument is invalid,
// mirroring the teacher's tiler.go/stripper.go ErrInvalidOption.
type ErrInvalidOption struct{ Msg string }

func (e ErrInvalidOption) Error() string { return "codec: invalid option: " + e.Msg }

// New builds an Options from code (the raw tag-259 compression code) and
// any number of Option functions, applied in order.
func New(rawCode uint16, opts ...Option) (Options, error) {
	o := Options{
		compression:            ifd.DecodeCompression(rawCode).Enum,
		rawCode:                rawCode,
		predictor:              ifd.PredictorNone,
		fillOrder:              ifd.FillOrderMSB2LSB,
		planar:                 ifd.PlanarChunky,
		sampleType:             ifd.SampleTypeUint8,
		samplesPerPixel:        1,
		order:                  binary.LittleEndian,
		losslessLevel:          2.0 / 3.0,
		codeBlockSize:          64,
		numDecompositionLevels: 5,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return Options{}, err
		}
	}
	return o, nil
}

// WithPredictor sets the horizontal-differencing predictor.
func WithPredictor(p ifd.Predictor) Option {
	return func(o *Options) error {
		o.predictor = p
		return nil
	}
}

// WithFillOrder sets the bit order samples are packed in (sub-byte depths).
func WithFillOrder(f ifd.FillOrder) Option {
	return func(o *Options) error {
		o.fillOrder = f
		return nil
	}
}

// WithPlanarConfig sets chunky vs. separate interleaving.
func WithPlanarConfig(p ifd.PlanarConfiguration) Option {
	return func(o *Options) error {
		o.planar = p
		return nil
	}
}

// WithSampleGeometry sets the per-tile sample type, count, and pixel
// dimensions the predictor and interleave transforms need.
func WithSampleGeometry(st ifd.SampleType, samplesPerPixel, width, height int) Option {
	return func(o *Options) error {
		if samplesPerPixel < 1 {
			return ErrInvalidOption{"samples per pixel must be >=1"}
		}
		if width < 1 || height < 1 {
			return ErrInvalidOption{"width and height must be >=1"}
		}
		o.sampleType = st
		o.samplesPerPixel = samplesPerPixel
		o.width = width
		o.height = height
		return nil
	}
}

// WithByteOrder sets the tile's on-disk byte order, consulted by the
// horizontal predictor's multi-byte sample arithmetic (spec.md §4.2).
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *Options) error {
		if order == nil {
			return ErrInvalidOption{"byte order must not be nil"}
		}
		o.order = order
		return nil
	}
}

// WithLosslessLevel sets the generic lossless_level ∈ [0,1] option
// (spec.md §4.2/§6.3). Deflate maps it to a zlib level via
// deflateLevelFromLossless: 0 maps to no compression, otherwise
// max(1, round(9*min(level,1))).
func WithLosslessLevel(level float64) Option {
	return func(o *Options) error {
		if level < 0 || level > 1 {
			return ErrInvalidOption{"lossless level must be in [0,1]"}
		}
		o.losslessLevel = level
		return nil
	}
}

// WithQuality sets the generic quality ∈ (0,1] option (spec.md §4.2/§6.3),
// consulted by the baseline JPEG and lossy JPEG-2000 codecs.
func WithQuality(q float64) Option {
	return func(o *Options) error {
		if q <= 0 || q > 1 {
			return ErrInvalidOption{"quality must be in (0,1]"}
		}
		o.quality = q
		return nil
	}
}

// WithCodeBlockSize sets the JPEG-2000 code-block edge length in pixels
// (spec.md §6.3 code_block_size); must be a power of two.
func WithCodeBlockSize(size int) Option {
	return func(o *Options) error {
		if size < 4 || size&(size-1) != 0 {
			return ErrInvalidOption{"code block size must be a power of two >= 4"}
		}
		o.codeBlockSize = size
		return nil
	}
}

// WithDecompositionLevels sets the JPEG-2000 wavelet decomposition depth
// (spec.md §6.3 num_decomposition_levels).
func WithDecompositionLevels(levels int) Option {
	return func(o *Options) error {
		if levels < 0 {
			return ErrInvalidOption{"decomposition levels must be >= 0"}
		}
		o.numDecompositionLevels = levels
		return nil
	}
}

// WithResolutionLevel sets the JPEG-2000 decode-side resolution reduction
// (spec.md §6.3 resolution_level): 0 is full resolution, 1 half, etc.
func WithResolutionLevel(level int) Option {
	return func(o *Options) error {
		if level < 0 {
			return ErrInvalidOption{"resolution level must be >= 0"}
		}
		o.resolutionLevel = level
		return nil
	}
}

// deflateLevelFromLossless maps the generic lossless_level ∈ [0,1] option
// to a zlib compression level 0-9, per spec.md §4.2's documented formula:
// 0 maps to no compression; otherwise max(1, round(9*min(level,1))).
func deflateLevelFromLossless(level float64) int {
	if level <= 0 {
		return 0
	}
	if level > 1 {
		level = 1
	}
	lvl := int(math.Round(9 * level))
	if lvl < 1 {
		lvl = 1
	}
	return lvl
}

func (o Options) String() string {
	return fmt.Sprintf("codec.Options{compression=%d predictor=%d planar=%d sampleType=%d spp=%d %dx%d}",
		o.rawCode, o.predictor, o.planar, o.sampleType, o.samplesPerPixel, o.width, o.height)
}
