package reader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoslide/tiffcore/bytestream"
	"github.com/geoslide/tiffcore/ifd"
)

// buildSingleTileFile writes a minimal classic, single-IFD, single-tile
// 16x16 grayscale TIFF (one tile exactly covering the whole image, so no
// edge padding is involved, uncompressed) into a fresh in-memory backend
// and returns the ByteStream plus the raw pixel bytes that were written.
func buildSingleTileFile(t *testing.T) (*bytestream.ByteStream, []byte) {
	t.Helper()
	order := binary.LittleEndian
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), order)
	require.NoError(t, err)

	require.NoError(t, bs.Seek(0))
	_, err = bs.Write([]byte("II"))
	require.NoError(t, err)
	require.NoError(t, bs.WriteU16(42))
	require.NoError(t, bs.WriteU32(8))

	d := ifd.New(false, order)
	require.NoError(t, d.SetDimensions(16, 16))
	d.SetBitsPerSample([]uint16{8})
	d.SetSamplesPerPixel(1)
	d.SetPhotometricWithDefaultSamples(ifd.PhotometricMinIsBlack)
	d.SetCompression(1)
	d.SetPlanarConfig(ifd.PlanarChunky)
	require.NoError(t, d.SetTileGeometry(16, 16))

	pixels := make([]byte, 16*16)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	tileDataOffset := int64(8) + d.SerializedSize()
	d.SetOffsets([]uint64{uint64(tileDataOffset)})
	d.SetByteCounts([]uint64{uint64(len(pixels))})

	require.NoError(t, bs.Seek(8))
	_, err = d.Serialize(bs)
	require.NoError(t, err)

	require.NoError(t, bs.Seek(tileDataOffset))
	_, err = bs.Write(pixels)
	require.NoError(t, err)
	require.NoError(t, bs.Flush())

	return bs, pixels
}

func TestOpenParsesHeaderAndFirstIFD(t *testing.T) {
	bs, _ := buildSingleTileFile(t)
	r, err := Open(bs, ModeValidTIFF)
	require.NoError(t, err)
	assert.True(t, r.IsTIFF())
	assert.False(t, r.Header().BigTiff)
	assert.Equal(t, binary.LittleEndian, r.Header().Order)
}

func TestOpenNonTIFFAllowMode(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	require.NoError(t, bs.Seek(0))
	_, err = bs.Write([]byte("not a tiff file at all"))
	require.NoError(t, err)

	r, err := Open(bs, ModeAllowNonTIFF)
	require.NoError(t, err)
	assert.False(t, r.IsTIFF())
}

func TestOpenNonTIFFValidModeFails(t *testing.T) {
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	require.NoError(t, bs.Seek(0))
	_, err = bs.Write([]byte("garbage!"))
	require.NoError(t, err)
	_, err = Open(bs, ModeValidTIFF)
	assert.Error(t, err)
}

func TestAllIFDsAndReadSingleIFD(t *testing.T) {
	bs, _ := buildSingleTileFile(t)
	r, err := Open(bs, ModeValidTIFF)
	require.NoError(t, err)

	all, err := r.AllIFDs()
	require.NoError(t, err)
	require.Len(t, all, 1)

	single, err := r.ReadSingleIFD(0)
	require.NoError(t, err)
	assert.True(t, single.Equal(all[0]))

	_, err = r.ReadSingleIFD(1)
	assert.Error(t, err)
}

func TestReadTileReturnsDecodedPixels(t *testing.T) {
	bs, pixels := buildSingleTileFile(t)
	r, err := Open(bs, ModeValidTIFF)
	require.NoError(t, err)

	got, err := r.ReadTile(0, 0)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)
}

func TestReadTileUsesCache(t *testing.T) {
	bs, pixels := buildSingleTileFile(t)
	cache := NewTileCache(1 << 20)
	r, err := Open(bs, ModeValidTIFF, WithCache(cache), WithIdentity("test-file"))
	require.NoError(t, err)

	got, err := r.ReadTile(0, 0)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)

	cached, ok := cache.Get("test-file", 0)
	require.True(t, ok)
	assert.Equal(t, pixels, cached)
}

func TestReadTileOutOfRangeMissingTileStrict(t *testing.T) {
	bs, _ := buildSingleTileFile(t)
	r, err := Open(bs, ModeValidTIFF)
	require.NoError(t, err)
	_, err = r.ReadTile(0, 5)
	assert.Error(t, err)
}

func TestReadTileMissingTileLenient(t *testing.T) {
	bs, _ := buildSingleTileFile(t)
	r, err := Open(bs, ModeValidTIFF, WithMissingTilesAllowed(0x7F))
	require.NoError(t, err)

	d, err := r.ReadSingleIFD(0)
	require.NoError(t, err)
	d.SetOffsets([]uint64{0})

	got, err := r.ReadTile(0, 0)
	require.NoError(t, err)
	for _, b := range got {
		assert.Equal(t, byte(0x7F), b)
	}
}

func TestReadRectangleWholeImageMatchesReadTile(t *testing.T) {
	bs, pixels := buildSingleTileFile(t)
	r, err := Open(bs, ModeValidTIFF)
	require.NoError(t, err)

	planes, err := r.ReadRectangle(0, 0, 0, 16, 16, true)
	require.NoError(t, err)
	require.Len(t, planes, 1)
	assert.Equal(t, pixels, planes[0])
}

func TestReadRectangleSubRegion(t *testing.T) {
	bs, pixels := buildSingleTileFile(t)
	r, err := Open(bs, ModeValidTIFF)
	require.NoError(t, err)

	planes, err := r.ReadRectangle(0, 4, 4, 8, 8, true)
	require.NoError(t, err)
	require.Len(t, planes, 1)
	got := planes[0]
	require.Len(t, got, 64)
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			wantIdx := (4+row)*16 + (4 + col)
			assert.Equal(t, pixels[wantIdx], got[row*8+col])
		}
	}
}
