// Package ifd implements the Image File Directory: a typed, ordered
// tag->value dictionary plus its on-disk (de)serialization for both
// classic (32-bit) and BigTIFF (64-bit) layouts, in either byte order
// (spec.md §3.1, §4.3, §6.1).
//
// The entry encode/decode switch below is a direct generalization of the
// teacher's field.go (arrayFieldSize/writeArray/writeField): that code only
// ever writes a fixed, compile-time-known struct of fields for one purpose
// (COG rewriting). Here the same inline-vs-relocated placement rule and the
// same per-type byte layout are driven by a runtime Entry so the one IFD
// type serves reading, writing, and editing.
package ifd

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/geoslide/tiffcore/tifferr"
)

// Entry is one on-disk (tag, type, count, value-or-offset) record plus its
// decoded value (spec.md §3.1). Data holds one of: []byte, []int8, string,
// []uint16, []int16, []uint32, []int32, []uint64, []int64, []float32,
// []float64, []Rational, []SRational.
type Entry struct {
	Tag   Tag
	Type  Type
	Count uint64
	Data  interface{}
}

// IFD is an ordered tag->Entry dictionary plus the bookkeeping spec.md §3.2
// requires for in-place-vs-relocated rewrites.
type IFD struct {
	BigTiff bool
	Order   binary.ByteOrder

	entries []*Entry
	index   map[Tag]int

	// fileOffsetForReading is where this IFD was parsed from (0 if never
	// read from disk). fileOffsetForWriting is where a Writer intends to
	// rewrite it in place; NextPointerPos is the absolute file position of
	// the 4-/8-byte next-IFD-offset field last written, so the caller can
	// patch it when a later IFD is appended or relocated (spec.md §3.2).
	fileOffsetForReading int64
	fileOffsetForWriting int64
	hasWriteOffset       bool
	NextPointerPos       int64

	smartFormatCorrection bool
	allowUTF8Description  bool

	cachedTileOffsets    []uint64
	cachedTileByteCounts []uint64
}

// New returns an empty IFD ready to have tags Set on it.
func New(bigTiff bool, order binary.ByteOrder) *IFD {
	return &IFD{BigTiff: bigTiff, Order: order, index: make(map[Tag]int)}
}

// SetSmartFormatCorrection enables spec.md §4.6's opt-in normalization of
// out-of-spec parameters (tile sizes rounded to multiples of 16) instead of
// rejecting them outright.
func (d *IFD) SetSmartFormatCorrection(enabled bool) { d.smartFormatCorrection = enabled }

// AllowUTF8Description opts the IFD into writing ImageDescription as UTF-8;
// by default non-ASCII text is refused (spec.md §4.3).
func (d *IFD) AllowUTF8Description(enabled bool) { d.allowUTF8Description = enabled }

// FileOffsetForReading reports where this IFD was parsed from, or 0 for a
// freshly constructed one.
func (d *IFD) FileOffsetForReading() int64 { return d.fileOffsetForReading }

// FileOffsetForWriting reports the position a Writer intends to rewrite
// this IFD at in place, and whether one has been recorded.
func (d *IFD) FileOffsetForWriting() (int64, bool) { return d.fileOffsetForWriting, d.hasWriteOffset }

// SetFileOffsetForWriting records the position a subsequent Serialize call
// should target for an in-place rewrite attempt.
func (d *IFD) SetFileOffsetForWriting(off int64) {
	d.fileOffsetForWriting = off
	d.hasWriteOffset = true
}

// Entries returns the IFD's entries in ascending tag order (spec.md §3.1:
// "Tags within one IFD are unique and stored in ascending tag order").
func (d *IFD) Entries() []*Entry { return append([]*Entry(nil), d.entries...) }

// Get returns the entry for tag, if present.
func (d *IFD) Get(tag Tag) (*Entry, bool) {
	i, ok := d.index[tag]
	if !ok {
		return nil, false
	}
	return d.entries[i], true
}

// Has reports whether tag is present.
func (d *IFD) Has(tag Tag) bool {
	_, ok := d.index[tag]
	return ok
}

// set installs (or replaces) the entry for tag, keeping entries sorted by
// tag (spec.md §3.1's ascending-tag-order invariant) and invalidating the
// derived-geometry caches.
func (d *IFD) set(e *Entry) {
	d.cachedTileOffsets = nil
	d.cachedTileByteCounts = nil
	if i, ok := d.index[e.Tag]; ok {
		d.entries[i] = e
		return
	}
	pos := sort.Search(len(d.entries), func(i int) bool { return d.entries[i].Tag >= e.Tag })
	d.entries = append(d.entries, nil)
	copy(d.entries[pos+1:], d.entries[pos:])
	d.entries[pos] = e
	for t, i := range d.index {
		if i >= pos {
			d.index[t] = i + 1
		}
	}
	d.index[e.Tag] = pos
}

// Clone returns a new IFD with the same tags and decoded values as d,
// targeting bigTiff/order (which may differ from d's own -- layout is a
// serialization-time concern, Entry.Data already holds decoded Go values).
// File-offset bookkeeping and cached derived geometry are not copied; the
// clone starts as if freshly built via New. Grounded on the Copier's need
// (spec.md §4.7) to build a destination IFD from a source one, rewriting
// only a handful of tags (dimensions, offsets, byte counts, compression).
func (d *IFD) Clone(bigTiff bool, order binary.ByteOrder) *IFD {
	c := New(bigTiff, order)
	c.smartFormatCorrection = d.smartFormatCorrection
	c.allowUTF8Description = d.allowUTF8Description
	for _, e := range d.entries {
		c.set(&Entry{Tag: e.Tag, Type: e.Type, Count: e.Count, Data: cloneEntryData(e.Data)})
	}
	return c
}

func cloneEntryData(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return append([]byte(nil), x...)
	case []int8:
		return append([]int8(nil), x...)
	case []uint16:
		return append([]uint16(nil), x...)
	case []int16:
		return append([]int16(nil), x...)
	case []uint32:
		return append([]uint32(nil), x...)
	case []int32:
		return append([]int32(nil), x...)
	case []uint64:
		return append([]uint64(nil), x...)
	case []int64:
		return append([]int64(nil), x...)
	case []float32:
		return append([]float32(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	case []Rational:
		return append([]Rational(nil), x...)
	case []SRational:
		return append([]SRational(nil), x...)
	default:
		return v // string and other value types are already immutable
	}
}

// Delete removes tag's entry, if any.
func (d *IFD) Delete(tag Tag) {
	i, ok := d.index[tag]
	if !ok {
		return
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	delete(d.index, tag)
	for t, idx := range d.index {
		if idx > i {
			d.index[t] = idx - 1
		}
	}
	d.cachedTileOffsets = nil
	d.cachedTileByteCounts = nil
}

// Validate checks the required-tag invariants of spec.md §6.1 for either a
// tile-based or a strip-based image (whichever TileWidth's presence
// selects), plus the dimension-overflow invariant (spec.md §8 invariant 8).
func (d *IFD) Validate() error {
	required := requiredStripTags
	if d.Has(TagTileWidth) {
		required = requiredTileTags
	}
	for _, tag := range required {
		if !d.Has(tag) {
			return tifferr.New(tifferr.KindMalformedIFD, fmt.Sprintf("missing required tag %s", tag.Name()))
		}
	}
	w, h, err := d.Dimensions()
	if err != nil {
		return err
	}
	spp, err := d.SamplesPerPixel()
	if err != nil {
		return err
	}
	if w != 0 && h != 0 && uint64(spp) != 0 {
		if w > (1<<63-1)/h || w*h > (1<<63-1)/uint64(spp) {
			return tifferr.New(tifferr.KindCyclicOrOversize, "image dimensions overflow 63 bits")
		}
	}
	return nil
}

// Equal reports whether d and other serialize to the same tag->value map,
// ignoring where out-of-line arrays happen to land (spec.md §3.1's
// serialization-equality invariant, and §8 invariant 1).
func (d *IFD) Equal(other *IFD) bool {
	if len(d.entries) != len(other.entries) {
		return false
	}
	for i, e := range d.entries {
		o := other.entries[i]
		if e.Tag != o.Tag || e.Type != o.Type || e.Count != o.Count {
			return false
		}
		if !dataEqual(e.Data, o.Data) {
			return false
		}
	}
	return true
}

func dataEqual(a, b interface{}) bool {
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}

// --- scalar/array type coercion ---------------------------------------

// Uints coerces any unsigned- or signed-integral entry into a []uint64,
// matching spec.md §4.3's "typed accessors that coerce arrays of integral
// types". Rationals and floats are rejected.
func (e *Entry) Uints() ([]uint64, error) {
	switch v := e.Data.(type) {
	case []byte:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out, nil
	case []int8:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out, nil
	case []uint16:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out, nil
	case []int16:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out, nil
	case []uint32:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out, nil
	case []int32:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out, nil
	case []uint64:
		return append([]uint64(nil), v...), nil
	case []int64:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("ifd: tag %s (type %s) is not an integral array", e.Tag.Name(), e.Type)
	}
}

// Floats coerces a FLOAT/DOUBLE (or any integral) entry into a []float64.
func (e *Entry) Floats() ([]float64, error) {
	switch v := e.Data.(type) {
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []float64:
		return append([]float64(nil), v...), nil
	case []Rational:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = x.Float()
		}
		return out, nil
	case []SRational:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = x.Float()
		}
		return out, nil
	default:
		u, err := e.Uints()
		if err != nil {
			return nil, fmt.Errorf("ifd: tag %s is not numeric: %w", e.Tag.Name(), err)
		}
		out := make([]float64, len(u))
		for i, x := range u {
			out[i] = float64(x)
		}
		return out, nil
	}
}

// ASCII returns a TAscii entry's string value.
func (e *Entry) ASCII() (string, error) {
	s, ok := e.Data.(string)
	if !ok {
		return "", fmt.Errorf("ifd: tag %s is not ASCII", e.Tag.Name())
	}
	return s, nil
}

