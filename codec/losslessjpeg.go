package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/geoslide/tiffcore/tifferr"
)

// losslessJPEGCodec implements compression code 34676: lossless JPEG with a
// SOF3 (differential Huffman, spatial prediction) frame header, per ITU-T
// T.81 Annex H. No repo in the donor corpus implements SOF3 -- every
// JPEG-flavored example (ausocean-av, jrm-1535-jpeg, the go-dicom-codec/
// go-jpeg2000 family) targets baseline DCT or JPEG 2000, and the standard
// library's image/jpeg only decodes baseline/progressive DCT frames, so
// this is hand-written directly from T.81 Annex H's specification text; the
// marker-byte table is grounded on (not imported -- see DESIGN.md) garyhouston-
// jpegsegs' marker constant table, and the bitstream reader reuses this
// package's own LZW bit-reader style (lzw.go) adapted for byte-stuffed JPEG
// entropy-coded data. Per spec.md §9's resolved Open Question, this is
// read-only: Encode always fails.
type losslessJPEGCodec struct{}

func (losslessJPEGCodec) Name() string { return "lossless-jpeg" }

func (losslessJPEGCodec) Encode(raw []byte, _ Options) ([]byte, error) {
	return nil, tifferr.New(tifferr.KindUnsupportedFeature, "lossless JPEG (SOF3) encode is not supported; read-only per design")
}

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOF3 = 0xC3
	markerDHT  = 0xC4
	markerSOS  = 0xDA
	markerDRI  = 0xDD
)

type huffTable struct {
	// Canonical Huffman decoding tables built from the DHT code
	// lengths/symbols: for each code length L, minCode[L]..maxCode[L] is the
	// range of codes of that length and valPtr[L] is the index in values of
	// the symbol for minCode[L].
	minCode  [17]int
	maxCode  [17]int
	valPtr   [17]int
	values   []byte
}

func buildHuffTable(counts [16]byte, values []byte) *huffTable {
	h := &huffTable{values: values}
	code := 0
	k := 0
	for l := 1; l <= 16; l++ {
		n := int(counts[l-1])
		if n == 0 {
			h.minCode[l] = -1
			h.maxCode[l] = -1
			continue
		}
		h.valPtr[l] = k
		h.minCode[l] = code
		code += n
		k += n
		h.maxCode[l] = code - 1
		code <<= 1
	}
	return h
}

type jpegBitReader struct {
	data []byte
	pos  int
	buf  uint32
	nbit int
}

func (r *jpegBitReader) fill() error {
	for r.nbit <= 24 {
		if r.pos >= len(r.data) {
			return fmt.Errorf("lossless-jpeg: unexpected end of entropy data")
		}
		b := r.data[r.pos]
		r.pos++
		if b == 0xFF {
			if r.pos < len(r.data) && r.data[r.pos] == 0x00 {
				r.pos++
			} else {
				// Marker encountered; stop filling, caller must not ask for
				// more bits than already buffered.
				r.pos--
				return nil
			}
		}
		r.buf = (r.buf << 8) | uint32(b)
		r.nbit += 8
	}
	return nil
}

func (r *jpegBitReader) readBit() (int, error) {
	if r.nbit == 0 {
		if err := r.fill(); err != nil {
			return 0, err
		}
		if r.nbit == 0 {
			return 0, fmt.Errorf("lossless-jpeg: ran out of entropy bits")
		}
	}
	r.nbit--
	bit := (r.buf >> uint(r.nbit)) & 1
	return int(bit), nil
}

func (r *jpegBitReader) decodeHuff(h *huffTable) (byte, error) {
	code := 0
	for l := 1; l <= 16; l++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		code = (code << 1) | bit
		if h.minCode[l] != -1 && code >= h.minCode[l] && code <= h.maxCode[l] {
			idx := h.valPtr[l] + (code - h.minCode[l])
			return h.values[idx], nil
		}
	}
	return 0, fmt.Errorf("lossless-jpeg: invalid Huffman code")
}

// receiveExtend reads an n-bit magnitude-coded difference value per T.81
// Annex F.2.2.1 (shared between baseline DC and lossless differences).
func (r *jpegBitReader) receiveExtend(n int) (int, error) {
	if n == 0 {
		return 0, nil
	}
	v := 0
	for i := 0; i < n; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | bit
	}
	if v < (1 << uint(n-1)) {
		v -= (1 << uint(n)) - 1
	}
	return v, nil
}

type losslessComponent struct {
	id        byte
	hSamp     byte
	vSamp     byte
	tableSel  byte
}

func (losslessJPEGCodec) Decode(compressed []byte, rawLen int, opts Options) ([]byte, error) {
	p := 0
	readU16 := func() (uint16, error) {
		if p+2 > len(compressed) {
			return 0, fmt.Errorf("lossless-jpeg: truncated header")
		}
		v := binary.BigEndian.Uint16(compressed[p:])
		p += 2
		return v, nil
	}

	if p+4 > len(compressed) || compressed[p] != 0xFF || compressed[p+1] != markerSOI {
		return nil, fmt.Errorf("lossless-jpeg: missing SOI marker")
	}
	p += 2

	var (
		width, height int
		precision     int
		components    []losslessComponent
		huffTables    [4]*huffTable
		predictorSel  byte
		scanComps     []byte
	)

	for p < len(compressed) {
		if compressed[p] != 0xFF {
			return nil, fmt.Errorf("lossless-jpeg: expected marker at offset %d", p)
		}
		marker := compressed[p+1]
		p += 2
		switch marker {
		case markerEOI:
			return nil, fmt.Errorf("lossless-jpeg: hit EOI before SOS")
		case markerSOF3:
			segLen, err := readU16()
			if err != nil {
				return nil, err
			}
			segEnd := p + int(segLen) - 2
			precision = int(compressed[p])
			height = int(binary.BigEndian.Uint16(compressed[p+1:]))
			width = int(binary.BigEndian.Uint16(compressed[p+3:]))
			nComp := int(compressed[p+5])
			off := p + 6
			components = nil
			for i := 0; i < nComp; i++ {
				components = append(components, losslessComponent{
					id:    compressed[off],
					hSamp: compressed[off+1] >> 4,
					vSamp: compressed[off+1] & 0xF,
				})
				off += 3
			}
			p = segEnd
		case markerDHT:
			segLen, err := readU16()
			if err != nil {
				return nil, err
			}
			segEnd := p + int(segLen) - 2
			for p < segEnd {
				tc := compressed[p] >> 4
				th := compressed[p] & 0xF
				p++
				var counts [16]byte
				copy(counts[:], compressed[p:p+16])
				p += 16
				total := 0
				for _, c := range counts {
					total += int(c)
				}
				values := append([]byte(nil), compressed[p:p+total]...)
				p += total
				if tc == 0 && th < 4 {
					huffTables[th] = buildHuffTable(counts, values)
				}
			}
		case markerDRI:
			if _, err := readU16(); err != nil {
				return nil, err
			}
			p += 2 // restart interval value
		case markerSOS:
			segLen, err := readU16()
			if err != nil {
				return nil, err
			}
			nComp := int(compressed[p])
			p++
			scanComps = nil
			tableForComp := map[byte]byte{}
			for i := 0; i < nComp; i++ {
				cid := compressed[p]
				td := compressed[p+1] >> 4
				scanComps = append(scanComps, cid)
				tableForComp[cid] = td
				p += 2
			}
			predictorSel = compressed[p]
			p += 3 // Ss, (Se unused for lossless -- predictor select byte already read), Ah/Al
			raw, consumed, err := decodeLosslessScan(compressed[p:], width, height, components, scanComps, tableForComp, huffTables, predictorSel, precision)
			if err != nil {
				return nil, err
			}
			p += consumed
			_ = segLen
			return raw, nil
		default:
			segLen, err := readU16()
			if err != nil {
				return nil, err
			}
			p += int(segLen) - 2
		}
	}
	return nil, fmt.Errorf("lossless-jpeg: no SOS segment found")
}

// decodeLosslessScan implements T.81 Annex H.1's predictive reconstruction
// for a single interleaved scan (the TIFF-embedded case always has one scan
// covering all components). Supports predictor selection values 0-7 applied
// per-component with correct edge handling for the first row/column.
func decodeLosslessScan(data []byte, width, height int, components []losslessComponent, scanComps []byte, tableForComp map[byte]byte, huffTables [4]*huffTable, predictor byte, precision int) ([]byte, int, error) {
	nComp := len(scanComps)
	samples := make([][]int, nComp)
	for i := range samples {
		samples[i] = make([]int, width*height)
	}
	r := &jpegBitReader{data: data}

	defaultVal := 1 << uint(precision-1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for ci, cid := range scanComps {
				tsel := tableForComp[cid]
				h := huffTables[tsel]
				if h == nil {
					return nil, 0, fmt.Errorf("lossless-jpeg: missing Huffman table for component %d", cid)
				}
				size, err := r.decodeHuff(h)
				if err != nil {
					return nil, 0, err
				}
				diff, err := r.receiveExtend(int(size))
				if err != nil {
					return nil, 0, err
				}
				var pred int
				switch {
				case x == 0 && y == 0:
					pred = defaultVal
				case y == 0:
					pred = samples[ci][y*width+x-1]
				case x == 0:
					pred = samples[ci][(y-1)*width+x]
				default:
					a := samples[ci][y*width+x-1]
					b := samples[ci][(y-1)*width+x]
					c := samples[ci][(y-1)*width+x-1]
					pred = predict(predictor, a, b, c)
				}
				samples[ci][y*width+x] = pred + diff
			}
		}
	}

	bw := 1
	if precision > 8 {
		bw = 2
	}
	out := make([]byte, width*height*nComp*bw)
	for px := 0; px < width*height; px++ {
		for ci := 0; ci < nComp; ci++ {
			v := samples[ci][px]
			idx := (px*nComp + ci) * bw
			if bw == 1 {
				out[idx] = byte(v)
			} else {
				binary.LittleEndian.PutUint16(out[idx:], uint16(v))
			}
		}
	}
	return out, r.pos, nil
}

func predict(sel byte, a, b, c int) int {
	switch sel {
	case 0:
		return 0
	case 1:
		return a
	case 2:
		return b
	case 3:
		return c
	case 4:
		return a + b - c
	case 5:
		return a + (b-c)/2
	case 6:
		return b + (a-c)/2
	case 7:
		return (a + b) / 2
	default:
		return a
	}
}
