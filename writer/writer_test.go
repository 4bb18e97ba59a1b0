package writer

import (
	"context"
	"encoding/binary"
	"image/color"
	"testing"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"

	"github.com/geoslide/tiffcore/bytestream"
	"github.com/geoslide/tiffcore/ifd"
	"github.com/geoslide/tiffcore/reader"
)

func newIFDForImage(w *Writer, width, height, tileSize uint32) *ifd.IFD {
	d := w.NewIFD()
	_ = d.SetDimensions(uint64(width), uint64(height))
	d.SetBitsPerSample([]uint16{8})
	d.SetSamplesPerPixel(1)
	d.SetPhotometricWithDefaultSamples(ifd.PhotometricMinIsBlack)
	d.SetCompression(1)
	d.SetPlanarConfig(ifd.PlanarChunky)
	_ = d.SetTileGeometry(tileSize, tileSize)
	return d
}

func fillPixels(n int, base byte) []byte {
	px := make([]byte, n)
	for i := range px {
		px[i] = base + byte(i)
	}
	return px
}

// rasterizeHello renders "Hello" onto a white width x height canvas and
// returns it as 8-bit grayscale, row-major -- the literal sample image of
// spec.md §8 scenario 6's sub-rectangle overwrite.
func rasterizeHello(width, height int) []byte {
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)
	dc.SetFontFace(basicfont.Face7x13)
	dc.DrawString("Hello", 1, float64(height)-3)
	img := dc.Image()

	px := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px[y*width+x] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
		}
	}
	return px
}

// TestCreateSingleTileRoundTrip grounds spec.md §8 scenario 1: a tiny
// classic grayscale image written then read back byte-for-byte.
func TestCreateSingleTileRoundTrip(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	w, err := Create(bs, false, binary.LittleEndian)
	require.NoError(t, err)

	d := newIFDForImage(w, 16, 16, 16)
	m, err := w.NewFixedMap(d, 0)
	require.NoError(t, err)

	px := fillPixels(16*16, 1)
	require.NoError(t, m.UpdateChannels([][]byte{px}, 0, 0, 16, 16))
	require.NoError(t, w.Complete(context.Background(), d, m))
	require.NoError(t, w.Close())

	r, err := reader.Open(bs, reader.ModeValidTIFF)
	require.NoError(t, err)
	got, err := r.ReadTile(0, 0)
	require.NoError(t, err)
	assert.Equal(t, px, got)
}

// TestOpenForAppendAddsSecondIFD grounds spec.md §4.6's OPEN_FOR_APPEND
// mode: a second image is appended without disturbing the first.
func TestOpenForAppendAddsSecondIFD(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	w, err := Create(bs, false, binary.LittleEndian)
	require.NoError(t, err)
	d0 := newIFDForImage(w, 16, 16, 16)
	m0, err := w.NewFixedMap(d0, 0)
	require.NoError(t, err)
	px0 := fillPixels(16*16, 1)
	require.NoError(t, m0.UpdateChannels([][]byte{px0}, 0, 0, 16, 16))
	require.NoError(t, w.Complete(context.Background(), d0, m0))
	require.NoError(t, w.Close())

	w2, err := OpenForAppend(bs)
	require.NoError(t, err)
	d1 := newIFDForImage(w2, 16, 16, 16)
	m1, err := w2.NewFixedMap(d1, 0)
	require.NoError(t, err)
	px1 := fillPixels(16*16, 100)
	require.NoError(t, m1.UpdateChannels([][]byte{px1}, 0, 0, 16, 16))
	require.NoError(t, w2.Complete(context.Background(), d1, m1))
	require.NoError(t, w2.Close())

	r, err := reader.Open(bs, reader.ModeValidTIFF)
	require.NoError(t, err)
	all, err := r.AllIFDs()
	require.NoError(t, err)
	require.Len(t, all, 2)

	got0, err := r.ReadTile(0, 0)
	require.NoError(t, err)
	assert.Equal(t, px0, got0)

	got1, err := r.ReadTile(1, 0)
	require.NoError(t, err)
	assert.Equal(t, px1, got1)
}

// TestOpenExistingPreloadAndPartialOverwrite grounds spec.md §8 scenario
// 6: preloading tiles overlapping a sub-rectangle, overwriting part of
// them, and confirming tiles outside the rectangle keep their original
// encoded bytes while tiles touching it blend old and new pixels.
func TestOpenExistingPreloadAndPartialOverwrite(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	w, err := Create(bs, false, binary.LittleEndian)
	require.NoError(t, err)
	d := newIFDForImage(w, 32, 32, 16)
	m, err := w.NewFixedMap(d, 0)
	require.NoError(t, err)
	original := fillPixels(32*32, 1)
	require.NoError(t, m.UpdateChannels([][]byte{original}, 0, 0, 32, 32))
	require.NoError(t, w.Complete(context.Background(), d, m))
	require.NoError(t, w.Close())

	we, err := OpenExisting(bs)
	require.NoError(t, err)
	require.Len(t, we.ifds, 1)
	d2 := we.ifds[0]
	d2.SetFileOffsetForWriting(d2.FileOffsetForReading())

	untouchedBefore, err := we.reader.ReadTile(0, 3) // bottom-right tile, index 3 in a 2x2 grid
	require.NoError(t, err)

	m2, err := we.NewFixedMap(d2, 0)
	require.NoError(t, err)
	require.NoError(t, we.PreloadExistingTiles(m2, 0, 8, 8, 8, 8))

	patch := fillPixels(8*8, 200)
	require.NoError(t, m2.UpdateChannels([][]byte{patch}, 8, 8, 8, 8))
	require.NoError(t, we.Complete(context.Background(), d2, m2))
	require.NoError(t, we.Close())

	r, err := reader.Open(bs, reader.ModeValidTIFF)
	require.NoError(t, err)
	all, err := r.AllIFDs()
	require.NoError(t, err)
	require.Len(t, all, 1) // edited in place, not appended as a new IFD

	untouchedAfter, err := r.ReadTile(0, 3)
	require.NoError(t, err)
	assert.Equal(t, untouchedBefore, untouchedAfter)

	patched, err := r.ReadTile(0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), patched[0]) // top-left corner outside the patch, unchanged
}

// TestOpenExistingPreloadAndDrawHelloIntoPatch grounds spec.md §8 scenario
// 6's literal wording: preload tiles overlapping a sub-rectangle, draw
// "Hello" into the preloaded buffer, write back, and confirm tiles outside
// the rectangle keep their original bytes while the rectangle itself now
// holds the rendered text.
func TestOpenExistingPreloadAndDrawHelloIntoPatch(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	w, err := Create(bs, false, binary.LittleEndian)
	require.NoError(t, err)
	d := newIFDForImage(w, 32, 32, 16)
	m, err := w.NewFixedMap(d, 0)
	require.NoError(t, err)
	original := fillPixels(32*32, 255)
	require.NoError(t, m.UpdateChannels([][]byte{original}, 0, 0, 32, 32))
	require.NoError(t, w.Complete(context.Background(), d, m))
	require.NoError(t, w.Close())

	we, err := OpenExisting(bs)
	require.NoError(t, err)
	d2 := we.ifds[0]
	d2.SetFileOffsetForWriting(d2.FileOffsetForReading())

	untouchedBefore, err := we.reader.ReadTile(0, 2) // bottom-left tile, outside the rectangle
	require.NoError(t, err)

	m2, err := we.NewFixedMap(d2, 0)
	require.NoError(t, err)
	require.NoError(t, we.PreloadExistingTiles(m2, 0, 0, 0, 24, 16))

	hello := rasterizeHello(24, 16)
	require.NoError(t, m2.UpdateChannels([][]byte{hello}, 0, 0, 24, 16))
	require.NoError(t, we.Complete(context.Background(), d2, m2))
	require.NoError(t, we.Close())

	r, err := reader.Open(bs, reader.ModeValidTIFF)
	require.NoError(t, err)
	all, err := r.AllIFDs()
	require.NoError(t, err)
	require.Len(t, all, 1)

	untouchedAfter, err := r.ReadTile(0, 2)
	require.NoError(t, err)
	assert.Equal(t, untouchedBefore, untouchedAfter)

	got, err := r.ReadRectangle(0, 0, 0, 24, 16, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, hello, got[0])
}

// TestRewriteIFDRelocatesOnGrowthAndPatchesChain grounds spec.md §8
// scenario 5: growing IFD #1's description relocates it to file end,
// patches IFD #0's next-pointer, keeps IFD #1's own next-pointer intact,
// and leaves IFD #2 unchanged.
func TestRewriteIFDRelocatesOnGrowthAndPatchesChain(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	w, err := Create(bs, false, binary.LittleEndian)
	require.NoError(t, err)

	var descriptions = []string{"short desc", "0123456789"}
	for i := 0; i < 3; i++ {
		d := newIFDForImage(w, 16, 16, 16)
		if i < len(descriptions) {
			require.NoError(t, d.SetDescription(descriptions[i]))
		}
		m, err := w.NewFixedMap(d, 0)
		require.NoError(t, err)
		px := fillPixels(16*16, byte(i+1))
		require.NoError(t, m.UpdateChannels([][]byte{px}, 0, 0, 16, 16))
		require.NoError(t, w.Complete(context.Background(), d, m))
	}
	require.NoError(t, w.Close())

	we, err := OpenExisting(bs)
	require.NoError(t, err)
	require.Len(t, we.ifds, 3)

	d1 := we.ifds[1]
	d1.SetFileOffsetForWriting(d1.FileOffsetForReading())
	grown := "this description is now much longer than ten characters"
	require.NoError(t, we.WriteDescription(1, grown, false))
	require.NoError(t, we.Close())

	r, err := reader.Open(bs, reader.ModeValidTIFF)
	require.NoError(t, err)
	all, err := r.AllIFDs()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, grown, all[1].Description())
	assert.Equal(t, descriptions[0], all[0].Description())

	got2, err := r.ReadTile(2, 0)
	require.NoError(t, err)
	assert.Equal(t, fillPixels(16*16, 3), got2)
}

// TestRewriteIFDStrictModeReturnsErrIFDGrew grounds spec.md §9 Open
// Question 1's resolution: requesting a strict in-place rewrite
// (updateLinks=false) fails with ErrIFDGrew instead of relocating.
func TestRewriteIFDStrictModeReturnsErrIFDGrew(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	w, err := Create(bs, false, binary.LittleEndian)
	require.NoError(t, err)
	d := newIFDForImage(w, 16, 16, 16)
	require.NoError(t, d.SetDescription("short"))
	m, err := w.NewFixedMap(d, 0)
	require.NoError(t, err)
	px := fillPixels(16*16, 9)
	require.NoError(t, m.UpdateChannels([][]byte{px}, 0, 0, 16, 16))
	require.NoError(t, w.Complete(context.Background(), d, m))
	require.NoError(t, w.Close())

	we, err := OpenExisting(bs)
	require.NoError(t, err)
	d0 := we.ifds[0]
	d0.SetFileOffsetForWriting(d0.FileOffsetForReading())

	err = we.WriteDescription(0, "a description long enough to force relocation past the reserved room", true)
	require.Error(t, err)
	var grew ErrIFDGrew
	assert.ErrorAs(t, err, &grew)
	require.NoError(t, we.Close())
}
