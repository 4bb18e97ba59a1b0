package ifd

import (
	"fmt"
)

// Dimensions returns (width, height), rejecting the 63-bit overflow spec.md
// §3.1/§8 invariant 8 calls out ("W*H > 2^63-1 fails").
func (d *IFD) Dimensions() (width, height uint64, err error) {
	w, err := d.uintTag(TagImageWidth)
	if err != nil {
		return 0, 0, err
	}
	h, err := d.uintTag(TagImageLength)
	if err != nil {
		return 0, 0, err
	}
	if w != 0 && h > (1<<63-1)/w {
		return 0, 0, fmt.Errorf("ifd: width*height overflows 63 bits")
	}
	return w, h, nil
}

func (d *IFD) uintTag(tag Tag) (uint64, error) {
	e, ok := d.Get(tag)
	if !ok {
		return 0, fmt.Errorf("ifd: missing tag %s", tag.Name())
	}
	u, err := e.Uints()
	if err != nil || len(u) == 0 {
		return 0, fmt.Errorf("ifd: tag %s has no value", tag.Name())
	}
	return u[0], nil
}

// Compression returns the decoded+raw compression value of tag 259,
// defaulting to NONE when absent (TIFF 6.0 default).
func (d *IFD) Compression() Compression {
	e, ok := d.Get(TagCompression)
	if !ok {
		return DecodeCompression(1)
	}
	u, err := e.Uints()
	if err != nil || len(u) == 0 {
		return DecodeCompression(1)
	}
	return DecodeCompression(uint16(u[0]))
}

// Photometric returns tag 262's value; there is no universal default so
// absence is an error.
func (d *IFD) Photometric() (Photometric, error) {
	v, err := d.uintTag(TagPhotometricInterpretation)
	if err != nil {
		return 0, err
	}
	return Photometric(v), nil
}

// PlanarConfig returns tag 284, defaulting to Chunky per TIFF 6.0.
func (d *IFD) PlanarConfig() PlanarConfiguration {
	e, ok := d.Get(TagPlanarConfiguration)
	if !ok {
		return PlanarChunky
	}
	u, err := e.Uints()
	if err != nil || len(u) == 0 {
		return PlanarChunky
	}
	return PlanarConfiguration(u[0])
}

// PredictorTag returns tag 317, defaulting to PredictorNone.
func (d *IFD) PredictorTag() Predictor {
	e, ok := d.Get(TagPredictor)
	if !ok {
		return PredictorNone
	}
	u, err := e.Uints()
	if err != nil || len(u) == 0 {
		return PredictorNone
	}
	return Predictor(u[0])
}

// FillOrderTag returns tag 266, defaulting to MSB-first.
func (d *IFD) FillOrderTag() FillOrder {
	e, ok := d.Get(TagFillOrder)
	if !ok {
		return FillOrderMSB2LSB
	}
	u, err := e.Uints()
	if err != nil || len(u) == 0 {
		return FillOrderMSB2LSB
	}
	return FillOrder(u[0])
}

// BitsPerSample returns tag 258, defaulting to a single 1-bit sample
// (TIFF 6.0's default) when absent.
func (d *IFD) BitsPerSample() ([]uint16, error) {
	e, ok := d.Get(TagBitsPerSample)
	if !ok {
		return []uint16{1}, nil
	}
	u, err := e.Uints()
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(u))
	for i, v := range u {
		out[i] = uint16(v)
	}
	return out, nil
}

// SamplesPerPixel returns tag 277, defaulting to 1.
func (d *IFD) SamplesPerPixel() (uint16, error) {
	e, ok := d.Get(TagSamplesPerPixel)
	if !ok {
		return 1, nil
	}
	u, err := e.Uints()
	if err != nil || len(u) == 0 {
		return 1, err
	}
	return uint16(u[0]), nil
}

// SampleFormats returns tag 339, defaulting to all-unsigned-integer.
func (d *IFD) SampleFormats() ([]SampleFormat, error) {
	spp, err := d.SamplesPerPixel()
	if err != nil {
		return nil, err
	}
	e, ok := d.Get(TagSampleFormat)
	if !ok {
		out := make([]SampleFormat, spp)
		for i := range out {
			out[i] = SampleFormatUInt
		}
		return out, nil
	}
	u, err := e.Uints()
	if err != nil {
		return nil, err
	}
	out := make([]SampleFormat, len(u))
	for i, v := range u {
		out[i] = SampleFormat(v)
	}
	return out, nil
}

// IsTiled reports whether the IFD describes a tiled (as opposed to
// strip-based) image.
func (d *IFD) IsTiled() bool { return d.Has(TagTileWidth) }

// TileGeometry returns the storage-unit dimensions: for a tiled image,
// (TileWidth, TileLength); for a strip-based image, (ImageWidth,
// RowsPerStrip), matching spec.md §3.1's "for strips: tx = image_width,
// ty = rows_per_strip".
func (d *IFD) TileGeometry() (tw, th uint32, err error) {
	if d.IsTiled() {
		w, err := d.uintTag(TagTileWidth)
		if err != nil {
			return 0, 0, err
		}
		h, err := d.uintTag(TagTileLength)
		if err != nil {
			return 0, 0, err
		}
		return uint32(w), uint32(h), nil
	}
	width, _, err := d.Dimensions()
	if err != nil {
		return 0, 0, err
	}
	rps, err := d.uintTag(TagRowsPerStrip)
	if err != nil {
		// RowsPerStrip defaults to the whole image (one strip) when absent.
		_, height, derr := d.Dimensions()
		if derr != nil {
			return 0, 0, derr
		}
		return uint32(width), uint32(height), nil
	}
	return uint32(width), uint32(rps), nil
}

// Offsets returns the tile/strip offset array, caching the coerced result
// so repeated reads are O(1) after the first (spec.md §4.3: "once cached,
// repeated reads are O(1)").
func (d *IFD) Offsets() ([]uint64, error) {
	if d.cachedTileOffsets != nil {
		return d.cachedTileOffsets, nil
	}
	tag := TagStripOffsets
	if d.IsTiled() {
		tag = TagTileOffsets
	}
	e, ok := d.Get(tag)
	if !ok {
		return nil, fmt.Errorf("ifd: missing %s", tag.Name())
	}
	u, err := e.Uints()
	if err != nil {
		return nil, err
	}
	d.cachedTileOffsets = u
	return u, nil
}

// ByteCounts returns the tile/strip byte-count array, cached like Offsets.
func (d *IFD) ByteCounts() ([]uint64, error) {
	if d.cachedTileByteCounts != nil {
		return d.cachedTileByteCounts, nil
	}
	tag := TagStripByteCounts
	if d.IsTiled() {
		tag = TagTileByteCounts
	}
	e, ok := d.Get(tag)
	if !ok {
		return nil, fmt.Errorf("ifd: missing %s", tag.Name())
	}
	u, err := e.Uints()
	if err != nil {
		return nil, err
	}
	d.cachedTileByteCounts = u
	return u, nil
}

// Description returns tag 270's value, or "" if absent.
func (d *IFD) Description() string {
	e, ok := d.Get(TagImageDescription)
	if !ok {
		return ""
	}
	s, _ := e.ASCII()
	return s
}

// SampleType derives the unified per-sample storage type from BitsPerSample
// and SampleFormat (spec.md §3.1), rejecting combinations where samples
// don't share one width and format. The historical Old-JPEG quirk this
// spec's §9 Open Questions resolves as unconditionally unsupported, so no
// exception is implemented here.
func (d *IFD) SampleType() (SampleType, error) {
	bits, err := d.BitsPerSample()
	if err != nil {
		return SampleTypeUnknown, err
	}
	formats, err := d.SampleFormats()
	if err != nil {
		return SampleTypeUnknown, err
	}
	if len(bits) == 0 {
		return SampleTypeUnknown, fmt.Errorf("ifd: BitsPerSample is empty")
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return SampleTypeUnknown, fmt.Errorf("ifd: samples do not share one bits-per-sample (%v)", bits)
		}
	}
	for _, f := range formats {
		if f != formats[0] {
			return SampleTypeUnknown, fmt.Errorf("ifd: samples do not share one sample format (%v)", formats)
		}
	}
	b, f := bits[0], formats[0]
	switch {
	case b == 1:
		return SampleTypeBit, nil
	case b == 8 && f == SampleFormatInt:
		return SampleTypeInt8, nil
	case b == 8:
		return SampleTypeUint8, nil
	case b == 16 && f == SampleFormatInt:
		return SampleTypeInt16, nil
	case b == 16 && f == SampleFormatFloat:
		return SampleTypeFloat16, nil
	case b == 16:
		return SampleTypeUint16, nil
	case b == 24 && f == SampleFormatInt:
		return SampleTypeInt24, nil
	case b == 24:
		return SampleTypeUint24, nil
	case b == 32 && f == SampleFormatInt:
		return SampleTypeInt32, nil
	case b == 32 && f == SampleFormatFloat:
		return SampleTypeFloat32, nil
	case b == 32:
		return SampleTypeUint32, nil
	case b == 64 && f == SampleFormatFloat:
		return SampleTypeFloat64, nil
	default:
		return SampleTypeUnknown, fmt.Errorf("ifd: unsupported bits-per-sample/format combination (%d bits, format %d)", b, f)
	}
}
