package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/geoslide/tiffcore/ifd"
)

// ApplyPredictor performs the forward horizontal-differencing transform
// (spec.md §4.2, tag 317): each sample (after the first in a row) is
// replaced by its difference from the previous sample of the same band, per
// row, operating on raw decoded bytes laid out per opts' sample geometry.
// PredictorFloat (3) additionally reorders bytes so all samples' most
// significant byte comes first, per the TIFF 6.0 Technical Note on
// floating-point predictors.
func ApplyPredictor(raw []byte, opts Options) ([]byte, error) {
	switch opts.predictor {
	case ifd.PredictorNone:
		return raw, nil
	case ifd.PredictorHorizontal:
		return horizontalDiff(raw, opts, true)
	case ifd.PredictorFloat:
		return floatPredictor(raw, opts, true)
	default:
		return nil, fmt.Errorf("codec: unsupported predictor %d", opts.predictor)
	}
}

// UndoPredictor reverses ApplyPredictor.
func UndoPredictor(raw []byte, opts Options) ([]byte, error) {
	switch opts.predictor {
	case ifd.PredictorNone:
		return raw, nil
	case ifd.PredictorHorizontal:
		return horizontalDiff(raw, opts, false)
	case ifd.PredictorFloat:
		return floatPredictor(raw, opts, false)
	default:
		return nil, fmt.Errorf("codec: unsupported predictor %d", opts.predictor)
	}
}

func horizontalDiff(raw []byte, opts Options, forward bool) ([]byte, error) {
	bw := opts.sampleType.ByteWidth()
	if bw == 0 {
		return nil, fmt.Errorf("codec: predictor requires a whole-byte sample type, got %v", opts.sampleType)
	}
	spp := opts.samplesPerPixel
	rowStride := opts.width * spp * bw
	if rowStride == 0 || len(raw)%rowStride != 0 {
		return nil, fmt.Errorf("codec: predictor input length %d is not a multiple of row stride %d", len(raw), rowStride)
	}
	out := append([]byte(nil), raw...)
	for row := 0; row < len(out); row += rowStride {
		rowBuf := out[row : row+rowStride]
		// Walk pixels right-to-left when differencing forward (so each
		// subtraction reads the still-original predecessor), left-to-right
		// when reconstructing (so each addition reads the already-restored
		// predecessor).
		if forward {
			for px := opts.width - 1; px >= 1; px-- {
				for s := 0; s < spp; s++ {
					subtractSample(rowBuf, px, px-1, s, spp, bw, opts.order)
				}
			}
		} else {
			for px := 1; px < opts.width; px++ {
				for s := 0; s < spp; s++ {
					addSample(rowBuf, px, px-1, s, spp, bw, opts.order)
				}
			}
		}
	}
	return out, nil
}

func sampleOffset(px, sample, spp, bw int) int {
	return (px*spp + sample) * bw
}

// byteOrderOrDefault falls back to LittleEndian for a zero-value Options
// (order unset), matching this module's prior hardcoded behavior.
func byteOrderOrDefault(order binary.ByteOrder) binary.ByteOrder {
	if order == nil {
		return binary.LittleEndian
	}
	return order
}

func subtractSample(row []byte, px, prevPx, sample, spp, bw int, order binary.ByteOrder) {
	order = byteOrderOrDefault(order)
	a := sampleOffset(px, sample, spp, bw)
	b := sampleOffset(prevPx, sample, spp, bw)
	switch bw {
	case 1:
		row[a] = row[a] - row[b]
	case 2:
		va := order.Uint16(row[a:])
		vb := order.Uint16(row[b:])
		order.PutUint16(row[a:], va-vb)
	case 4:
		va := order.Uint32(row[a:])
		vb := order.Uint32(row[b:])
		order.PutUint32(row[a:], va-vb)
	case 8:
		va := order.Uint64(row[a:])
		vb := order.Uint64(row[b:])
		order.PutUint64(row[a:], va-vb)
	}
}

func addSample(row []byte, px, prevPx, sample, spp, bw int, order binary.ByteOrder) {
	order = byteOrderOrDefault(order)
	a := sampleOffset(px, sample, spp, bw)
	b := sampleOffset(prevPx, sample, spp, bw)
	switch bw {
	case 1:
		row[a] = row[a] + row[b]
	case 2:
		va := order.Uint16(row[a:])
		vb := order.Uint16(row[b:])
		order.PutUint16(row[a:], va+vb)
	case 4:
		va := order.Uint32(row[a:])
		vb := order.Uint32(row[b:])
		order.PutUint32(row[a:], va+vb)
	case 8:
		va := order.Uint64(row[a:])
		vb := order.Uint64(row[b:])
		order.PutUint64(row[a:], va+vb)
	}
}

// floatPredictor implements TIFF's floating-point predictor: byte-plane
// rearrangement (all samples' high bytes first) composed with horizontal
// differencing over the rearranged byte planes.
func floatPredictor(raw []byte, opts Options, forward bool) ([]byte, error) {
	bw := opts.sampleType.ByteWidth()
	if bw == 0 {
		return nil, fmt.Errorf("codec: float predictor requires a whole-byte sample type")
	}
	spp := opts.samplesPerPixel
	rowStride := opts.width * spp * bw
	if rowStride == 0 || len(raw)%rowStride != 0 {
		return nil, fmt.Errorf("codec: predictor input length %d is not a multiple of row stride %d", len(raw), rowStride)
	}
	out := append([]byte(nil), raw...)
	rearranged := make([]byte, rowStride)
	samplesPerRow := opts.width * spp

	for row := 0; row < len(out); row += rowStride {
		rowBuf := out[row : row+rowStride]
		if forward {
			// Differencing is applied byte-plane-wise before rearrangement.
			diffPlanes(rowBuf, samplesPerRow, bw, true)
			planarize(rowBuf, rearranged, samplesPerRow, bw, true)
			copy(rowBuf, rearranged)
		} else {
			planarize(rowBuf, rearranged, samplesPerRow, bw, false)
			copy(rowBuf, rearranged)
			diffPlanes(rowBuf, samplesPerRow, bw, false)
		}
	}
	return out, nil
}

// diffPlanes differences each byte position across samples (not yet
// rearranged into planes); this mirrors horizontalDiff at byte granularity.
func diffPlanes(row []byte, samplesPerRow, bw int, forward bool) {
	if forward {
		for px := samplesPerRow - 1; px >= 1; px-- {
			for b := 0; b < bw; b++ {
				row[px*bw+b] -= row[(px-1)*bw+b]
			}
		}
	} else {
		for px := 1; px < samplesPerRow; px++ {
			for b := 0; b < bw; b++ {
				row[px*bw+b] += row[(px-1)*bw+b]
			}
		}
	}
}

// planarize transposes a row from sample-major (s0b0 s0b1 ... s1b0 s1b1...)
// to plane-major (all samples' byte 0, then all byte 1, ...) or back.
func planarize(src []byte, dst []byte, samplesPerRow, bw int, toPlanes bool) {
	for s := 0; s < samplesPerRow; s++ {
		for b := 0; b < bw; b++ {
			if toPlanes {
				dst[b*samplesPerRow+s] = src[s*bw+b]
			} else {
				dst[s*bw+b] = src[b*samplesPerRow+s]
			}
		}
	}
}
