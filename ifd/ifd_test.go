package ifd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoslide/tiffcore/bytestream"
)

func newTestIFD(t *testing.T, bigTiff bool) *IFD {
	t.Helper()
	d := New(bigTiff, binary.LittleEndian)
	require.NoError(t, d.SetDimensions(64, 32))
	d.SetBitsPerSample([]uint16{8})
	d.SetSamplesPerPixel(1)
	d.SetPhotometricWithDefaultSamples(PhotometricMinIsBlack)
	d.SetCompression(1)
	d.SetPlanarConfig(PlanarChunky)
	require.NoError(t, d.SetTileGeometry(16, 16))
	d.SetOffsets([]uint64{1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000})
	d.SetByteCounts([]uint64{100, 100, 100, 100, 100, 100, 100, 100})
	return d
}

func TestValidateRequiresTileTags(t *testing.T) {
	d := newTestIFD(t, false)
	require.NoError(t, d.Validate())
}

func TestValidateMissingRequiredTag(t *testing.T) {
	d := newTestIFD(t, false)
	d.Delete(TagTileOffsets)
	err := d.Validate()
	require.Error(t, err)
}

func TestSerializeParseRoundTrip(t *testing.T) {
	for _, bigTiff := range []bool{false, true} {
		d := newTestIFD(t, bigTiff)
		bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
		require.NoError(t, err)

		require.NoError(t, bs.Seek(8))
		_, err = d.Serialize(bs)
		require.NoError(t, err)

		got, next, err := Parse(bs, 8, bigTiff, binary.LittleEndian)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), next)
		assert.True(t, d.Equal(got), "round-tripped IFD should serialize-equal the original (bigTiff=%v)", bigTiff)
	}
}

func TestSerializedSizeMatchesBytesWritten(t *testing.T) {
	d := newTestIFD(t, false)
	bs, err := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	require.NoError(t, bs.Seek(0))
	want := d.SerializedSize()
	_, err = d.Serialize(bs)
	require.NoError(t, err)
	assert.Equal(t, want, bs.Offset())
}

func TestEqualIgnoresOutOfLinePlacement(t *testing.T) {
	a := newTestIFD(t, false)
	b := newTestIFD(t, false)
	// Force different out-of-line layouts by writing a at a different offset.
	bsA, _ := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	bsB, _ := bytestream.Open(bytestream.NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, bsA.Seek(8))
	require.NoError(t, bsB.Seek(1024))
	_, err := a.Serialize(bsA)
	require.NoError(t, err)
	_, err = b.Serialize(bsB)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestAscendingTagOrderMaintained(t *testing.T) {
	d := New(false, binary.LittleEndian)
	d.SetShort(TagCompression, 5)
	d.SetShort(TagPhotometricInterpretation, 1)
	d.SetUints(TagImageWidth, []uint64{10})
	entries := d.Entries()
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Tag, entries[i].Tag)
	}
}

func TestSetASCIIRejectsNonASCIIByDefault(t *testing.T) {
	d := New(false, binary.LittleEndian)
	err := d.SetDescription("café")
	assert.Error(t, err)
	d.AllowUTF8Description(true)
	require.NoError(t, d.SetDescription("café"))
	assert.Equal(t, "café", d.Description())
}

func TestSetTileGeometryRejectsNonMultipleOf16(t *testing.T) {
	d := New(false, binary.LittleEndian)
	err := d.SetTileGeometry(100, 100)
	assert.Error(t, err)
	d.SetSmartFormatCorrection(true)
	require.NoError(t, d.SetTileGeometry(100, 100))
	tw, th, err := d.TileGeometry()
	require.NoError(t, err)
	assert.Equal(t, uint32(112), tw)
	assert.Equal(t, uint32(112), th)
}

func TestSampleTypeDerivation(t *testing.T) {
	d := newTestIFD(t, false)
	st, err := d.SampleType()
	require.NoError(t, err)
	assert.Equal(t, SampleTypeUint8, st)
}

func TestDimensionsOverflowRejected(t *testing.T) {
	d := New(false, binary.LittleEndian)
	huge := uint64(1) << 62
	err := d.SetDimensions(huge, huge)
	assert.Error(t, err)
}

func TestStripTileGeometryDefaultsRowsPerStripToImageHeight(t *testing.T) {
	d := New(false, binary.LittleEndian)
	require.NoError(t, d.SetDimensions(100, 50))
	tw, th, err := d.TileGeometry()
	require.NoError(t, err)
	assert.Equal(t, uint32(100), tw)
	assert.Equal(t, uint32(50), th)
}

func TestOffsetsByteCountsCached(t *testing.T) {
	d := newTestIFD(t, false)
	first, err := d.Offsets()
	require.NoError(t, err)
	second, err := d.Offsets()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDumpModes(t *testing.T) {
	d := newTestIFD(t, false)
	assert.Contains(t, d.Dump(Brief), "tiled")
	assert.Contains(t, d.Dump(Normal), "ImageWidth")
	assert.Contains(t, d.Dump(JSON), "ImageWidth")
}
