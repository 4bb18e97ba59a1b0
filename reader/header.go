// Package reader implements open modes, header and IFD-chain parsing,
// on-demand tile decode with an LRU cache, and sub-rectangle assembly
// (spec.md §4.5). Grounded on the teacher's cog.go header layout
// (writeHeader's "II"/"MM" + 42/43 + offset-to-first-IFD shape), read in
// reverse.
package reader

import (
	"encoding/binary"

	"github.com/geoslide/tiffcore/bytestream"
	"github.com/geoslide/tiffcore/tifferr"
)

// classicMagic/bigTiffMagic are the TIFF 6.0 / BigTIFF version-number
// fields that follow the two-byte byte-order mark (spec.md §3.1), matching
// cog.go's writeHeader literals 42 and 43.
const (
	classicMagic  = 42
	bigTiffMagic  = 43
	bigTiffOffsetSize    = 8
	bigTiffConstantZero  = 0
)

// Header is the parsed 8-byte (classic) or 16-byte (BigTIFF) file header.
type Header struct {
	Order        binary.ByteOrder
	BigTiff      bool
	FirstIFDOffset int64
}

// ParseHeader reads and validates the file's byte-order mark and magic
// number, returning the byte order, BigTIFF-ness, and first-IFD offset.
func ParseHeader(bs *bytestream.ByteStream) (*Header, error) {
	if err := bs.Seek(0); err != nil {
		return nil, tifferr.Wrap(tifferr.KindMalformedHeader, "seek header", err)
	}
	var bom [2]byte
	if err := bs.ReadFull(bom[:]); err != nil {
		return nil, tifferr.Wrap(tifferr.KindMalformedHeader, "read byte-order mark", err)
	}
	var order binary.ByteOrder
	switch string(bom[:]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, tifferr.New(tifferr.KindMalformedHeader, "missing II/MM byte-order mark")
	}
	bs.SetOrder(order)

	magic, err := bs.ReadU16()
	if err != nil {
		return nil, tifferr.Wrap(tifferr.KindMalformedHeader, "read magic number", err)
	}
	switch magic {
	case classicMagic:
		off, err := bs.ReadU32()
		if err != nil {
			return nil, tifferr.Wrap(tifferr.KindMalformedHeader, "read first-IFD offset", err)
		}
		return &Header{Order: order, BigTiff: false, FirstIFDOffset: int64(off)}, nil
	case bigTiffMagic:
		offsetSize, err := bs.ReadU16()
		if err != nil {
			return nil, tifferr.Wrap(tifferr.KindMalformedHeader, "read BigTIFF offset size", err)
		}
		if offsetSize != bigTiffOffsetSize {
			return nil, tifferr.New(tifferr.KindMalformedHeader, "BigTIFF offset size field is not 8")
		}
		zero, err := bs.ReadU16()
		if err != nil {
			return nil, tifferr.Wrap(tifferr.KindMalformedHeader, "read BigTIFF constant", err)
		}
		if zero != bigTiffConstantZero {
			return nil, tifferr.New(tifferr.KindMalformedHeader, "BigTIFF reserved field is not zero")
		}
		off, err := bs.ReadU64()
		if err != nil {
			return nil, tifferr.Wrap(tifferr.KindMalformedHeader, "read first-IFD offset", err)
		}
		return &Header{Order: order, BigTiff: true, FirstIFDOffset: int64(off)}, nil
	default:
		return nil, tifferr.New(tifferr.KindMalformedHeader, "unrecognized magic number")
	}
}
