package copier

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoslide/tiffcore/bytestream"
	"github.com/geoslide/tiffcore/ifd"
	"github.com/geoslide/tiffcore/reader"
	"github.com/geoslide/tiffcore/writer"
)

func fillPixels(n int, base byte) []byte {
	px := make([]byte, n)
	for i := range px {
		px[i] = base + byte(i)
	}
	return px
}

// buildSource writes a single-IFD classic little-endian TIFF with two
// 16x16 tiles (32x16 image, tile size 16) compressed with CompressionNone,
// and returns the backing ByteStream plus the pixel bytes it wrote.
func buildSource(t *testing.T) (*bytestream.ByteStream, []byte) {
	t.Helper()
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	w, err := writer.Create(bs, false, binary.LittleEndian)
	require.NoError(t, err)

	d := w.NewIFD()
	require.NoError(t, d.SetDimensions(32, 16))
	d.SetBitsPerSample([]uint16{8})
	d.SetSamplesPerPixel(1)
	d.SetPhotometricWithDefaultSamples(ifd.PhotometricMinIsBlack)
	d.SetCompression(1) // CompressionNone
	d.SetPlanarConfig(ifd.PlanarChunky)
	require.NoError(t, d.SetTileGeometry(16, 16))

	m, err := w.NewFixedMap(d, 0)
	require.NoError(t, err)
	px := fillPixels(32*16, 5)
	require.NoError(t, m.UpdateChannels([][]byte{px}, 0, 0, 32, 16))
	require.NoError(t, w.Complete(context.Background(), d, m))
	require.NoError(t, w.Close())

	return bs, px
}

func decodeWholeImage(t *testing.T, bs *bytestream.ByteStream, ifdIndex, width, height int) []byte {
	t.Helper()
	r, err := reader.Open(bs, reader.ModeValidTIFF)
	require.NoError(t, err)
	planes, err := r.ReadRectangle(ifdIndex, 0, 0, width, height, false)
	require.NoError(t, err)
	require.Len(t, planes, 1)
	return planes[0]
}

// TestCopyImageDirectWholeImage grounds spec.md §4.7's Direct mode: bytes
// move tile-for-tile without touching the codec pipeline, and the copy
// decodes back to the same pixels as the source.
func TestCopyImageDirectWholeImage(t *testing.T) {
	src, px := buildSource(t)

	r, err := reader.Open(src, reader.ModeValidTIFF)
	require.NoError(t, err)

	dst, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	w, err := writer.Create(dst, false, binary.LittleEndian)
	require.NoError(t, err)

	c := New(WithDirectCopy(true))
	require.NoError(t, c.CopyImage(context.Background(), w, r, 0, nil))
	require.NoError(t, w.Close())

	got := decodeWholeImage(t, dst, 0, 32, 16)
	assert.Equal(t, px, got)
}

// TestCopyImageRecompressingChangesCodec grounds spec.md §4.7's
// recompressing mode: pixels survive a codec change even though the
// on-disk bytes do not.
func TestCopyImageRecompressingChangesCodec(t *testing.T) {
	src, px := buildSource(t)

	r, err := reader.Open(src, reader.ModeValidTIFF)
	require.NoError(t, err)

	dst, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	w, err := writer.Create(dst, false, binary.LittleEndian)
	require.NoError(t, err)

	c := New(WithDirectCopy(false), WithRecompressCode(32773)) // PackBits
	require.NoError(t, c.CopyImage(context.Background(), w, r, 0, nil))
	require.NoError(t, w.Close())

	all, err := reader.Open(dst, reader.ModeValidTIFF)
	require.NoError(t, err)
	ifds, err := all.AllIFDs()
	require.NoError(t, err)
	require.Len(t, ifds, 1)
	assert.Equal(t, uint16(32773), ifds[0].Compression().Code)

	got := decodeWholeImage(t, dst, 0, 32, 16)
	assert.Equal(t, px, got)
}

// TestCopyImageRectangleCrop grounds spec.md §4.7's rectangle copy: only
// the requested sub-rectangle is carried over, with its own dimensions.
func TestCopyImageRectangleCrop(t *testing.T) {
	src, px := buildSource(t)

	r, err := reader.Open(src, reader.ModeValidTIFF)
	require.NoError(t, err)

	dst, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	w, err := writer.Create(dst, false, binary.LittleEndian)
	require.NoError(t, err)

	c := New(WithDirectCopy(false))
	rect := &Rect{X: 16, Y: 0, W: 16, H: 16}
	require.NoError(t, c.CopyImage(context.Background(), w, r, 0, rect))
	require.NoError(t, w.Close())

	got := decodeWholeImage(t, dst, 0, 16, 16)
	want := make([]byte, 16*16)
	for y := 0; y < 16; y++ {
		copy(want[y*16:(y+1)*16], px[y*32+16:y*32+32])
	}
	assert.Equal(t, want, got)
}

// TestCompactRoundTrip grounds spec.md §4.7's compaction: every IFD in the
// source reappears in the compacted sink with unchanged pixels.
func TestCompactRoundTrip(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	w, err := writer.Create(bs, false, binary.LittleEndian)
	require.NoError(t, err)
	var pixelsByImage [][]byte
	for i := 0; i < 2; i++ {
		d := w.NewIFD()
		require.NoError(t, d.SetDimensions(16, 16))
		d.SetBitsPerSample([]uint16{8})
		d.SetSamplesPerPixel(1)
		d.SetPhotometricWithDefaultSamples(ifd.PhotometricMinIsBlack)
		d.SetCompression(1)
		d.SetPlanarConfig(ifd.PlanarChunky)
		require.NoError(t, d.SetTileGeometry(16, 16))
		m, err := w.NewFixedMap(d, 0)
		require.NoError(t, err)
		px := fillPixels(16*16, byte(10*(i+1)))
		require.NoError(t, m.UpdateChannels([][]byte{px}, 0, 0, 16, 16))
		require.NoError(t, w.Complete(context.Background(), d, m))
		pixelsByImage = append(pixelsByImage, px)
	}
	require.NoError(t, w.Close())

	dst, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	var progressCalls int
	c := New(WithProgressUpdater(func(imageIndex, imageCount, tileIndex, tileCount int, temp bool) {
		progressCalls++
		assert.True(t, temp)
	}))
	require.NoError(t, c.Compact(context.Background(), bs, dst))
	assert.Greater(t, progressCalls, 0)

	r, err := reader.Open(dst, reader.ModeValidTIFF)
	require.NoError(t, err)
	ifds, err := r.AllIFDs()
	require.NoError(t, err)
	require.Len(t, ifds, 2)

	for i := range ifds {
		got := decodeWholeImage(t, dst, i, 16, 16)
		assert.Equal(t, pixelsByImage[i], got)
	}
}

// TestCopyImageCancellation grounds spec.md §5's cooperative cancellation:
// a CancellationChecker that fires immediately aborts the copy.
func TestCopyImageCancellation(t *testing.T) {
	src, _ := buildSource(t)
	r, err := reader.Open(src, reader.ModeValidTIFF)
	require.NoError(t, err)

	dst, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	w, err := writer.Create(dst, false, binary.LittleEndian)
	require.NoError(t, err)

	c := New(WithDirectCopy(true), WithCancellationChecker(func() bool { return true }))
	err = c.CopyImage(context.Background(), w, r, 0, nil)
	require.Error(t, err)
	var cancelled ErrCancelled
	assert.ErrorAs(t, err, &cancelled)
}

// TestCopyImageDirectRejectsByteOrderMismatch grounds spec.md §4.7's
// requirement that direct copy needs matching byte order/BigTIFF-ness.
func TestCopyImageDirectRejectsByteOrderMismatch(t *testing.T) {
	src, _ := buildSource(t)
	r, err := reader.Open(src, reader.ModeValidTIFF)
	require.NoError(t, err)

	dst, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.BigEndian)
	require.NoError(t, err)
	w, err := writer.Create(dst, false, binary.BigEndian)
	require.NoError(t, err)

	c := New(WithDirectCopy(true))
	err = c.CopyImage(context.Background(), w, r, 0, nil)
	require.Error(t, err)
}
