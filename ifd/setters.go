package ifd

import "fmt"

// SetUints installs tag as a TLong (classic) or TLong8 (BigTIFF) array
// holding values, the general-purpose unsigned setter. It always uses
// LONG/LONG8, never SHORT, whatever the magnitude of the values.
func (d *IFD) SetUints(tag Tag, values []uint64) {
	if d.BigTiff {
		d.set(&Entry{Tag: tag, Type: TLong8, Count: uint64(len(values)), Data: append([]uint64(nil), values...)})
		return
	}
	out := make([]uint32, len(values))
	for i, v := range values {
		out[i] = uint32(v)
	}
	d.set(&Entry{Tag: tag, Type: TLong, Count: uint64(len(values)), Data: out})
}

// SetShorts installs tag as a TShort array.
func (d *IFD) SetShorts(tag Tag, values []uint16) {
	d.set(&Entry{Tag: tag, Type: TShort, Count: uint64(len(values)), Data: append([]uint16(nil), values...)})
}

// SetShort is shorthand for single-value SHORT entries (Compression,
// PhotometricInterpretation, PlanarConfiguration, Predictor, FillOrder,
// SampleFormat all take exactly one value per spec.md §3.1).
func (d *IFD) SetShort(tag Tag, value uint16) { d.SetShorts(tag, []uint16{value}) }

// SetBytes installs tag as a TByte array.
func (d *IFD) SetBytes(tag Tag, values []byte) {
	d.set(&Entry{Tag: tag, Type: TByte, Count: uint64(len(values)), Data: append([]byte(nil), values...)})
}

// SetASCII installs tag as a TAscii entry, rejecting non-ASCII text unless
// AllowUTF8Description has been set (spec.md §4.3's ASCII-by-default rule).
func (d *IFD) SetASCII(tag Tag, value string) error {
	if !d.allowUTF8Description {
		for _, r := range value {
			if r > 0x7f {
				return fmt.Errorf("ifd: tag %s contains non-ASCII text; enable AllowUTF8Description to allow it", tag.Name())
			}
		}
	}
	d.set(&Entry{Tag: tag, Type: TAscii, Count: uint64(len(value) + 1), Data: value})
	return nil
}

// SetDimensions sets ImageWidth/ImageLength, rejecting a product that would
// overflow 63 bits (spec.md §8 invariant 8).
func (d *IFD) SetDimensions(width, height uint64) error {
	if width != 0 && height > (1<<63-1)/width {
		return fmt.Errorf("ifd: width*height would overflow 63 bits")
	}
	d.SetUints(TagImageWidth, []uint64{width})
	d.SetUints(TagImageLength, []uint64{height})
	return nil
}

// SetCompression sets tag 259 from a raw code, preserving vendor codes the
// Compression enum doesn't recognize (spec.md §4.3).
func (d *IFD) SetCompression(code uint16) { d.SetShort(TagCompression, code) }

// SetPhotometric sets tag 262.
func (d *IFD) SetPhotometric(p Photometric) { d.SetShort(TagPhotometricInterpretation, uint16(p)) }

// SetPlanarConfig sets tag 284, and when switching to Separate,
// SamplesPerPixel must already describe the per-plane sample count (spec.md
// §3.1's planar-separated tile-index formula assumes this).
func (d *IFD) SetPlanarConfig(p PlanarConfiguration) { d.SetShort(TagPlanarConfiguration, uint16(p)) }

// SetPredictor sets tag 317.
func (d *IFD) SetPredictor(p Predictor) { d.SetShort(TagPredictor, uint16(p)) }

// SetFillOrder sets tag 266.
func (d *IFD) SetFillOrder(f FillOrder) { d.SetShort(TagFillOrder, uint16(f)) }

// SetBitsPerSample sets tag 258.
func (d *IFD) SetBitsPerSample(bits []uint16) { d.SetShorts(TagBitsPerSample, bits) }

// SetSamplesPerPixel sets tag 277, the default-normalization anchor spec.md
// §4.3 calls out: changing PhotometricInterpretation without an explicit
// SamplesPerPixel should still produce a consistent IFD, so callers that
// only set Photometric get the interpretation's conventional sample count
// via SetPhotometricWithDefaultSamples instead of silently mismatched tags.
func (d *IFD) SetSamplesPerPixel(n uint16) { d.SetShort(TagSamplesPerPixel, n) }

// SetPhotometricWithDefaultSamples sets Photometric and, if SamplesPerPixel
// is not yet present, fills in the conventional sample count for that
// interpretation (1 for grayscale/mask/palette, 3 for RGB/YCbCr/Lab, 4 for
// Separated), matching spec.md §4.3's normalization rule.
func (d *IFD) SetPhotometricWithDefaultSamples(p Photometric) {
	d.SetPhotometric(p)
	if d.Has(TagSamplesPerPixel) {
		return
	}
	switch p {
	case PhotometricRGB, PhotometricYCbCr, PhotometricCIELab, PhotometricICCLab, PhotometricITULab:
		d.SetSamplesPerPixel(3)
	case PhotometricSeparated:
		d.SetSamplesPerPixel(4)
	default:
		d.SetSamplesPerPixel(1)
	}
}

// SetTileGeometry sets TileWidth/TileLength, enforcing the multiple-of-16
// rule (spec.md §4.6) unless SmartFormatCorrection rounds instead of
// rejecting.
func (d *IFD) SetTileGeometry(tw, th uint32) error {
	tw, th, err := d.normalizeTileGeometry(tw, th)
	if err != nil {
		return err
	}
	d.SetUints(TagTileWidth, []uint64{uint64(tw)})
	d.SetUints(TagTileLength, []uint64{uint64(th)})
	return nil
}

func (d *IFD) normalizeTileGeometry(tw, th uint32) (uint32, uint32, error) {
	bad := tw%16 != 0 || th%16 != 0
	if !bad {
		return tw, th, nil
	}
	if !d.smartFormatCorrection {
		return 0, 0, fmt.Errorf("ifd: tile dimensions %dx%d must be multiples of 16; enable SmartFormatCorrection to round instead", tw, th)
	}
	round := func(v uint32) uint32 {
		if v%16 == 0 {
			return v
		}
		return (v/16 + 1) * 16
	}
	return round(tw), round(th), nil
}

// SetStripGeometry sets RowsPerStrip; unlike tiles, strips have no
// multiple-of-16 constraint (spec.md §3.1).
func (d *IFD) SetStripGeometry(rowsPerStrip uint32) {
	d.SetUints(TagRowsPerStrip, []uint64{uint64(rowsPerStrip)})
}

// SetOffsets installs the tile/strip offset array and invalidates the
// cached copy so a subsequent Offsets() call re-reads it.
func (d *IFD) SetOffsets(offsets []uint64) {
	tag := TagStripOffsets
	if d.IsTiled() {
		tag = TagTileOffsets
	}
	d.SetUints(tag, offsets)
	d.cachedTileOffsets = append([]uint64(nil), offsets...)
}

// SetByteCounts installs the tile/strip byte-count array.
func (d *IFD) SetByteCounts(counts []uint64) {
	tag := TagStripByteCounts
	if d.IsTiled() {
		tag = TagTileByteCounts
	}
	d.SetUints(tag, counts)
	d.cachedTileByteCounts = append([]uint64(nil), counts...)
}

// SetDescription sets tag 270 under the same ASCII/UTF-8 rule as SetASCII.
func (d *IFD) SetDescription(s string) error { return d.SetASCII(TagImageDescription, s) }
