package reader

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/geoslide/tiffcore/bytestream"
	"github.com/geoslide/tiffcore/codec"
	"github.com/geoslide/tiffcore/ifd"
	"github.com/geoslide/tiffcore/tifferr"
	"github.com/geoslide/tiffcore/tilemap"
)

// OpenMode controls how aggressively a Reader surfaces problems on
// construction and while walking the IFD chain (spec.md §4.5).
type OpenMode int

const (
	// ModeNoChecks defers every error to the first operation that needs
	// the bad data; construction never fails.
	ModeNoChecks OpenMode = iota
	// ModeAllowNonTIFF does not fail construction on a non-TIFF file;
	// callers test IsTIFF() themselves.
	ModeAllowNonTIFF
	// ModeValidTIFF fails Open immediately on any header or first-IFD
	// problem.
	ModeValidTIFF
)

// maxIFDChainLength is the cycle-guard cap spec.md §4.5 names: "a maximum
// of 2^20 IFDs halts traversal".
const maxIFDChainLength = 1 << 20

// Option configures a Reader at construction.
type Option func(*Reader)

// WithCache shares a TileCache across Readers (e.g. one per open file,
// backed by a single process-wide cache).
func WithCache(c *TileCache) Option { return func(r *Reader) { r.cache = c } }

// WithLogger attaches structured logging (spec.md §4.8); nil defaults to a
// no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMissingTilesAllowed makes ReadTile/ReadRectangle substitute
// byteFiller for a tile whose offset/byte-count is zero or whose decode
// fails, instead of propagating the error (spec.md §4.5's lenient mode).
func WithMissingTilesAllowed(byteFiller byte) Option {
	return func(r *Reader) {
		r.missingTilesAllowed = true
		r.byteFiller = byteFiller
	}
}

// WithIdentity sets the cache-key identity for this file (spec.md §3.2/§3.4);
// defaults to a value derived from the ByteStream pointer if unset, which
// is only stable within one process.
func WithIdentity(identity string) Option {
	return func(r *Reader) { r.identity = identity }
}

// Reader parses one TIFF/BigTIFF file's header and IFD chain and decodes
// tiles on demand (spec.md §4.5). Grounded on the teacher's single-pass
// cog.go/loader.go reading style, generalized from "load everything
// eagerly for rewriting" to "parse lazily, decode on demand, cache
// decoded tiles."
type Reader struct {
	bs     *bytestream.ByteStream
	mode   OpenMode
	header *Header

	identity string
	cache    *TileCache
	logger   *zap.Logger

	missingTilesAllowed bool
	byteFiller          byte

	ifds       []*ifd.IFD
	nextOffset []uint64 // next[i] is IFD i's on-disk next-pointer, 0 = end
	chainDone  bool
}

// Open parses bs's header per mode and returns a Reader. ModeValidTIFF
// also requires the first IFD to parse successfully.
func Open(bs *bytestream.ByteStream, mode OpenMode, opts ...Option) (*Reader, error) {
	r := &Reader{bs: bs, mode: mode, logger: zap.NewNop(), identity: fmt.Sprintf("%p", bs)}
	for _, o := range opts {
		o(r)
	}
	h, err := ParseHeader(bs)
	if err != nil {
		if mode == ModeValidTIFF {
			return nil, err
		}
		if mode == ModeNoChecks {
			r.header = nil
			return r, nil
		}
		// ModeAllowNonTIFF: swallow the error, IsTIFF reports false.
		r.header = nil
		return r, nil
	}
	r.header = h
	if mode == ModeValidTIFF {
		if _, _, err := ifd.Parse(bs, h.FirstIFDOffset, h.BigTiff, h.Order); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// IsTIFF reports whether the header parsed successfully.
func (r *Reader) IsTIFF() bool { return r.header != nil }

// Header returns the parsed header, or nil if the file isn't a TIFF and
// the open mode allowed that.
func (r *Reader) Header() *Header { return r.header }

func (r *Reader) requireHeader() error {
	if r.header == nil {
		return tifferr.New(tifferr.KindMalformedHeader, "not a TIFF file")
	}
	return nil
}

// walkChain parses IFDs in order starting from the first IFD offset,
// stopping once count is reached (or the chain ends / cycles), reusing
// whatever prefix is already cached in r.ifds.
func (r *Reader) walkChain(count int) error {
	if err := r.requireHeader(); err != nil {
		return err
	}
	if r.chainDone && (count <= 0 || len(r.ifds) >= count) {
		return nil
	}
	var offset int64
	visited := make(map[int64]bool, len(r.ifds))
	if len(r.ifds) == 0 {
		offset = r.header.FirstIFDOffset
	} else {
		if int64(len(r.nextOffset)) < int64(len(r.ifds)) {
			return tifferr.New(tifferr.KindMalformedIFD, "internal: next-offset bookkeeping desynced")
		}
		offset = int64(r.nextOffset[len(r.ifds)-1])
		for i := 0; i < len(r.ifds); i++ {
			visited[r.ifds[i].FileOffsetForReading()] = true
		}
	}

	var lastOffset int64 = -1
	for offset != 0 {
		if count > 0 && len(r.ifds) >= count {
			return nil
		}
		if len(r.ifds) >= maxIFDChainLength {
			return tifferr.New(tifferr.KindCyclicOrOversize, "IFD chain exceeds 2^20 entries")
		}
		if visited[offset] {
			return tifferr.New(tifferr.KindCyclicOrOversize, "IFD chain revisits an offset")
		}
		if offset <= lastOffset {
			return tifferr.New(tifferr.KindCyclicOrOversize, "IFD chain offset does not increase")
		}
		visited[offset] = true

		d, next, err := ifd.Parse(r.bs, offset, r.header.BigTiff, r.header.Order)
		if err != nil {
			return tifferr.Wrap(tifferr.KindMalformedIFD, "walk IFD chain", err).WithIFD(len(r.ifds))
		}
		r.ifds = append(r.ifds, d)
		r.nextOffset = append(r.nextOffset, next)
		lastOffset = offset
		offset = int64(next)
	}
	r.chainDone = true
	return nil
}

// AllIFDs returns every IFD in the chain, parsing (and caching) the whole
// chain on first call (spec.md §4.5).
func (r *Reader) AllIFDs() ([]*ifd.IFD, error) {
	if err := r.walkChain(0); err != nil {
		return nil, err
	}
	return append([]*ifd.IFD(nil), r.ifds...), nil
}

// ReadSingleIFD returns the index-th IFD, walking only as far as needed
// (spec.md §4.5: "may skip to the i-th without materializing
// intermediates").
func (r *Reader) ReadSingleIFD(index int) (*ifd.IFD, error) {
	if err := r.walkChain(index + 1); err != nil {
		return nil, err
	}
	if index >= len(r.ifds) {
		return nil, tifferr.New(tifferr.KindMalformedIFD, fmt.Sprintf("IFD index %d out of range (chain has %d)", index, len(r.ifds)))
	}
	return r.ifds[index], nil
}

// Grid returns the tile/strip addressing geometry for IFD ifdIndex.
func (r *Reader) Grid(ifdIndex int) (tilemap.Grid, error) {
	d, err := r.ReadSingleIFD(ifdIndex)
	if err != nil {
		return tilemap.Grid{}, err
	}
	return gridFor(d)
}

func gridFor(d *ifd.IFD) (tilemap.Grid, error) {
	w, h, err := d.Dimensions()
	if err != nil {
		return tilemap.Grid{}, err
	}
	tw, th, err := d.TileGeometry()
	if err != nil {
		return tilemap.Grid{}, err
	}
	spp, err := d.SamplesPerPixel()
	if err != nil {
		return tilemap.Grid{}, err
	}
	planes := 1
	if d.PlanarConfig() == ifd.PlanarSeparate {
		planes = int(spp)
	}
	return tilemap.Grid{
		ImageWidth: int(w), ImageHeight: int(h),
		TileWidth: int(tw), TileHeight: int(th),
		Planes: planes,
	}, nil
}

// decodeOptions builds the codec.Options describing how tile tileIndex of
// d's storage unit is encoded, including the actual on-disk geometry
// (tiles are stored at full TileWidth/TileHeight even at the image edge;
// strips, except the last, are stored at RowsPerStrip -- the last strip
// holds only the remaining rows).
func decodeOptions(d *ifd.IFD, g tilemap.Grid, x, y int, order binary.ByteOrder) (codec.Options, int, error) {
	spp, err := d.SamplesPerPixel()
	if err != nil {
		return codec.Options{}, 0, err
	}
	samplesInUnit := int(spp)
	if d.PlanarConfig() == ifd.PlanarSeparate {
		samplesInUnit = 1
	}
	st, err := d.SampleType()
	if err != nil {
		return codec.Options{}, 0, err
	}

	w := g.TileWidth
	h := g.TileHeight
	if !d.IsTiled() {
		_, _, _, height := g.Bounds(x, y)
		h = height
	}

	opts, err := codec.New(d.Compression().Code,
		codec.WithPredictor(d.PredictorTag()),
		codec.WithFillOrder(d.FillOrderTag()),
		codec.WithPlanarConfig(d.PlanarConfig()),
		codec.WithSampleGeometry(st, samplesInUnit, w, h),
		codec.WithByteOrder(order),
	)
	if err != nil {
		return codec.Options{}, 0, err
	}
	bits, err := d.BitsPerSample()
	if err != nil || len(bits) == 0 {
		return codec.Options{}, 0, fmt.Errorf("ifd: cannot determine bits-per-sample")
	}
	totalBits := int(bits[0]) * samplesInUnit
	rawLen := (w*h*totalBits + 7) / 8
	return opts, rawLen, nil
}

// ReadTile returns the decoded (post-predictor, pre-interleave) bytes for
// one storage unit, consulting the tile cache first and honoring
// missing-tile leniency (spec.md §4.5).
func (r *Reader) ReadTile(ifdIndex, tileIndex int) ([]byte, error) {
	d, err := r.ReadSingleIFD(ifdIndex)
	if err != nil {
		return nil, err
	}
	g, err := gridFor(d)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if px, ok := r.cache.Get(r.identity, tileIndex); ok {
			return px, nil
		}
	}

	px, err := r.decodeTile(d, g, tileIndex)
	if err != nil {
		if r.missingTilesAllowed {
			r.logger.Warn("substituting byte-filler for unreadable tile",
				zap.Int("ifd_index", ifdIndex), zap.Int("tile_index", tileIndex), zap.Error(err))
			px = filledTile(d, g, tileIndex, r.byteFiller, r.header.Order)
		} else {
			return nil, tifferr.Wrap(tifferr.KindMissingTile, "read_tile", err).WithIFD(ifdIndex).WithTile(int64(tileIndex))
		}
	}
	if r.cache != nil {
		r.cache.Put(r.identity, tileIndex, px)
	}
	return px, nil
}

func filledTile(d *ifd.IFD, g tilemap.Grid, tileIndex int, filler byte, order binary.ByteOrder) []byte {
	x, y, _, err := g.Coords(tileIndex)
	if err != nil {
		return nil
	}
	_, rawLen, err := decodeOptions(d, g, x, y, order)
	if err != nil {
		return nil
	}
	out := make([]byte, rawLen)
	for i := range out {
		out[i] = filler
	}
	return out
}

// ReadRawTileBytes returns tile tileIndex's on-disk encoded bytes
// verbatim, without decoding -- used by Copier's direct (verbatim) copy
// mode (spec.md §4.7), which must not touch codec/predictor logic at
// all.
func (r *Reader) ReadRawTileBytes(ifdIndex, tileIndex int) ([]byte, error) {
	d, err := r.ReadSingleIFD(ifdIndex)
	if err != nil {
		return nil, err
	}
	offsets, err := d.Offsets()
	if err != nil {
		return nil, err
	}
	byteCounts, err := d.ByteCounts()
	if err != nil {
		return nil, err
	}
	if tileIndex < 0 || tileIndex >= len(offsets) || tileIndex >= len(byteCounts) {
		return nil, tifferr.New(tifferr.KindMissingTile, fmt.Sprintf("tile index %d out of range", tileIndex)).WithIFD(ifdIndex).WithTile(int64(tileIndex))
	}
	off, n := offsets[tileIndex], byteCounts[tileIndex]
	if off == 0 || n == 0 {
		return nil, tifferr.New(tifferr.KindMissingTile, "tile has no data (offset/length zero)").WithIFD(ifdIndex).WithTile(int64(tileIndex))
	}
	raw := make([]byte, n)
	if _, err := r.bs.ReadAt(raw, int64(off)); err != nil {
		return nil, tifferr.Wrap(tifferr.KindIO, "read raw tile bytes", err)
	}
	return raw, nil
}

func (r *Reader) decodeTile(d *ifd.IFD, g tilemap.Grid, tileIndex int) ([]byte, error) {
	x, y, _, err := g.Coords(tileIndex)
	if err != nil {
		return nil, err
	}
	offsets, err := d.Offsets()
	if err != nil {
		return nil, err
	}
	byteCounts, err := d.ByteCounts()
	if err != nil {
		return nil, err
	}
	if tileIndex < 0 || tileIndex >= len(offsets) || tileIndex >= len(byteCounts) {
		return nil, fmt.Errorf("reader: tile index %d out of range", tileIndex)
	}
	off := offsets[tileIndex]
	n := byteCounts[tileIndex]
	if off == 0 || n == 0 {
		return nil, fmt.Errorf("reader: tile %d has no data (offset/length zero)", tileIndex)
	}
	compressed := make([]byte, n)
	if _, err := r.bs.ReadAt(compressed, int64(off)); err != nil {
		return nil, tifferr.Wrap(tifferr.KindIO, "read tile bytes", err)
	}

	opts, rawLen, err := decodeOptions(d, g, x, y, r.header.Order)
	if err != nil {
		return nil, err
	}
	decompressed, err := codec.Decode(compressed, rawLen, opts)
	if err != nil {
		return nil, err
	}
	restored, err := codec.UndoPredictor(decompressed, opts)
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// ReadRectangle reads every tile intersecting [x,x+w)x[y,y+h) of IFD
// ifdIndex and assembles one planar channel buffer per plane, per spec.md
// §4.5. If interleave is true and the image is planar-separate, the
// per-plane buffers are interleaved to chunky (pixel-major) order before
// returning, via codec.Interleave.
func (r *Reader) ReadRectangle(ifdIndex, x, y, w, h int, interleave bool) ([][]byte, error) {
	d, err := r.ReadSingleIFD(ifdIndex)
	if err != nil {
		return nil, err
	}
	g, err := gridFor(d)
	if err != nil {
		return nil, err
	}
	spp, err := d.SamplesPerPixel()
	if err != nil {
		return nil, err
	}
	st, err := d.SampleType()
	if err != nil {
		return nil, err
	}
	bw := st.ByteWidth()
	if bw == 0 {
		bw = 1
	}

	planes := make([][]byte, g.Planes)
	rowStride := w * bw
	if g.Planes == 1 {
		rowStride = w * int(spp) * bw
	}
	for p := range planes {
		planes[p] = make([]byte, rowStride*h)
	}

	for _, xy := range g.TilesIntersecting(x, y, w, h) {
		tx, ty := xy[0], xy[1]
		left, top, tw, th := g.Bounds(tx, ty)
		for plane := 0; plane < g.Planes; plane++ {
			idx, err := g.Index(tx, ty, plane)
			if err != nil {
				return nil, err
			}
			px, err := r.ReadTile(ifdIndex, idx)
			if err != nil {
				return nil, err
			}
			copyTileIntoRect(planes[plane], px, rowStride, bw, samplesPerTileUnit(d, int(spp)),
				x, y, w, h, left, top, tw, th, g.TileWidth)
		}
	}

	if interleave && g.Planes > 1 {
		opts, err := codec.New(d.Compression().Code, codec.WithSampleGeometry(st, int(spp), w, h))
		if err != nil {
			return nil, err
		}
		chunky, err := codec.Interleave(planes, opts)
		if err != nil {
			return nil, err
		}
		return [][]byte{chunky}, nil
	}
	return planes, nil
}

func samplesPerTileUnit(d *ifd.IFD, spp int) int {
	if d.PlanarConfig() == ifd.PlanarSeparate {
		return 1
	}
	return spp
}

// copyTileIntoRect copies the overlap between one tile's bounds and the
// destination rectangle into dst, a rowStride*h buffer already sized for
// the full rectangle.
func copyTileIntoRect(dst, tile []byte, rowStride, bw, samplesPerUnit, rx, ry, rw, rh, tileLeft, tileTop, tileW, tileH, tileStorageWidth int) {
	ox, oy := max(tileLeft, rx), max(tileTop, ry)
	ex, ey := min(tileLeft+tileW, rx+rw), min(tileTop+tileH, ry+rh)
	if ex <= ox || ey <= oy {
		return
	}
	tileRowStride := tileStorageWidth * samplesPerUnit * bw
	unitSize := samplesPerUnit * bw
	for row := oy; row < ey; row++ {
		srcOff := (row-tileTop)*tileRowStride + (ox-tileLeft)*unitSize
		dstOff := (row-ry)*rowStride + (ox-rx)*unitSize
		n := (ex - ox) * unitSize
		if srcOff+n > len(tile) || dstOff+n > len(dst) {
			continue
		}
		copy(dst[dstOff:dstOff+n], tile[srcOff:srcOff+n])
	}
}

// Close flushes and closes the underlying ByteStream.
func (r *Reader) Close() error { return r.bs.Close() }
