package ifd

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/geoslide/tiffcore/bytestream"
	"github.com/geoslide/tiffcore/tifferr"
)

// entrySlotSize and entryFixedSize are the per-entry on-disk sizes for the
// (tag,type,count,value-or-offset) record (spec.md §6.1): 12 bytes classic
// (4-byte count, 4-byte value slot), 20 bytes BigTIFF (8-byte count, 8-byte
// value slot).
func (d *IFD) entryFixedSize() int {
	if d.BigTiff {
		return 20
	}
	return 12
}

func (d *IFD) slotSize() int {
	if d.BigTiff {
		return 8
	}
	return 4
}

// dataByteLen returns the on-disk length in bytes of e's array payload.
func dataByteLen(e *Entry) int {
	n := int(e.Count)
	switch e.Type {
	case TAscii:
		s := e.Data.(string)
		return len(s) + 1
	case TRational, TSRational:
		return n * 8
	default:
		return n * e.Type.Size()
	}
}

// SerializedSize returns the number of bytes a Serialize call would write:
// the entry-count field, N fixed-size entries, the out-of-line arrays that
// don't fit inline, and the trailing next-IFD-offset field. Mirrors the
// teacher's field.go arrayFieldSize/IFD.structure size-accounting, but
// computed from a live Entry slice instead of a fixed Go struct.
func (d *IFD) SerializedSize() int64 {
	countField := int64(2)
	nextField := int64(4)
	if d.BigTiff {
		countField = 8
		nextField = 8
	}
	size := countField + int64(len(d.entries))*int64(d.entryFixedSize()) + nextField
	slot := d.slotSize()
	for _, e := range d.entries {
		if dataByteLen(e) > slot {
			size += int64(dataByteLen(e))
		}
	}
	return size
}

// Serialize writes the IFD at the stream's current position: entry count,
// N entries (inline values left-justified and zero-padded, larger values
// relocated to an immediately following out-of-line area, per spec.md
// §6.1's inline rule), and a zero next-IFD-offset placeholder. It returns
// the absolute file position of that next-offset field so the caller can
// patch it once the following IFD's position is known (spec.md §3.2).
func (d *IFD) Serialize(bs *bytestream.ByteStream) (nextPointerPos int64, err error) {
	start := bs.Offset()
	n := uint64(len(d.entries))
	if d.BigTiff {
		if err := bs.WriteU64(n); err != nil {
			return 0, err
		}
	} else {
		if err := bs.WriteU16(uint16(n)); err != nil {
			return 0, err
		}
	}

	slot := d.slotSize()
	entriesEnd := bs.Offset() + int64(len(d.entries))*int64(d.entryFixedSize())
	nextField := int64(4)
	if d.BigTiff {
		nextField = 8
	}
	outOfLineCursor := entriesEnd + nextField

	for _, e := range d.entries {
		if err := bs.WriteU16(uint16(e.Tag)); err != nil {
			return 0, err
		}
		if err := bs.WriteU16(uint16(e.Type)); err != nil {
			return 0, err
		}
		count := e.Count
		if e.Type == TAscii {
			count = uint64(len(e.Data.(string)) + 1)
		}
		if d.BigTiff {
			if err := bs.WriteU64(count); err != nil {
				return 0, err
			}
		} else {
			if count > math.MaxUint32 {
				return 0, tifferr.New(tifferr.KindCyclicOrOversize, "entry count overflows classic TIFF's 32-bit count field")
			}
			if err := bs.WriteU32(uint32(count)); err != nil {
				return 0, err
			}
		}

		payload := encodeEntryData(d.Order, e)
		if len(payload) <= slot {
			padded := make([]byte, slot)
			copy(padded, payload)
			if _, err := bs.Write(padded); err != nil {
				return 0, err
			}
		} else {
			if d.BigTiff {
				if err := bs.WriteU64(uint64(outOfLineCursor)); err != nil {
					return 0, err
				}
			} else {
				if outOfLineCursor > math.MaxUint32 {
					return 0, tifferr.New(tifferr.KindCyclicOrOversize, "out-of-line offset overflows classic TIFF's 32-bit offset field")
				}
				if err := bs.WriteU32(uint32(outOfLineCursor)); err != nil {
					return 0, err
				}
			}
			outOfLineCursor += int64(len(payload))
		}
	}

	nextPointerPos = bs.Offset()
	if d.BigTiff {
		if err := bs.WriteU64(0); err != nil {
			return 0, err
		}
	} else {
		if err := bs.WriteU32(0); err != nil {
			return 0, err
		}
	}

	for _, e := range d.entries {
		payload := encodeEntryData(d.Order, e)
		if len(payload) > slot {
			if _, err := bs.Write(payload); err != nil {
				return 0, err
			}
		}
	}

	if bs.Offset() != start+d.SerializedSize() {
		return 0, fmt.Errorf("ifd: internal error: wrote %d bytes, expected %d", bs.Offset()-start, d.SerializedSize())
	}
	d.NextPointerPos = nextPointerPos
	return nextPointerPos, nil
}

// encodeEntryData renders e's value as it would appear either inline or in
// the out-of-line area -- the two placements share the same byte layout,
// only the slot padding differs (spec.md §6.1's inline rule). Directly
// generalizes the teacher's field.go writeArray/writeField type switch
// (there keyed on a fixed struct's field types; here on Entry.Data).
func encodeEntryData(order binary.ByteOrder, e *Entry) []byte {
	switch v := e.Data.(type) {
	case []byte:
		return append([]byte(nil), v...)
	case []int8:
		out := make([]byte, len(v))
		for i, x := range v {
			out[i] = byte(x)
		}
		return out
	case string:
		out := make([]byte, len(v)+1)
		copy(out, v)
		return out
	case []uint16:
		out := make([]byte, len(v)*2)
		for i, x := range v {
			order.PutUint16(out[i*2:], x)
		}
		return out
	case []int16:
		out := make([]byte, len(v)*2)
		for i, x := range v {
			order.PutUint16(out[i*2:], uint16(x))
		}
		return out
	case []uint32:
		out := make([]byte, len(v)*4)
		for i, x := range v {
			order.PutUint32(out[i*4:], x)
		}
		return out
	case []int32:
		out := make([]byte, len(v)*4)
		for i, x := range v {
			order.PutUint32(out[i*4:], uint32(x))
		}
		return out
	case []uint64:
		out := make([]byte, len(v)*8)
		for i, x := range v {
			order.PutUint64(out[i*8:], x)
		}
		return out
	case []int64:
		out := make([]byte, len(v)*8)
		for i, x := range v {
			order.PutUint64(out[i*8:], uint64(x))
		}
		return out
	case []float32:
		out := make([]byte, len(v)*4)
		for i, x := range v {
			order.PutUint32(out[i*4:], math.Float32bits(x))
		}
		return out
	case []float64:
		out := make([]byte, len(v)*8)
		for i, x := range v {
			order.PutUint64(out[i*8:], math.Float64bits(x))
		}
		return out
	case []Rational:
		out := make([]byte, len(v)*8)
		for i, x := range v {
			order.PutUint32(out[i*8:], x.Num)
			order.PutUint32(out[i*8+4:], x.Den)
		}
		return out
	case []SRational:
		out := make([]byte, len(v)*8)
		for i, x := range v {
			order.PutUint32(out[i*8:], uint32(x.Num))
			order.PutUint32(out[i*8+4:], uint32(x.Den))
		}
		return out
	default:
		return nil
	}
}
