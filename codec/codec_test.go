package codec

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoslide/tiffcore/ifd"
)

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func TestNoneRoundTrip(t *testing.T) {
	opts, err := New(1)
	require.NoError(t, err)
	raw := randomBytes(256, 1)
	enc, err := Encode(raw, opts)
	require.NoError(t, err)
	dec, err := Decode(enc, len(raw), opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestPackBitsRoundTripRandom(t *testing.T) {
	opts, err := New(32773)
	require.NoError(t, err)
	raw := randomBytes(1000, 2)
	enc, err := Encode(raw, opts)
	require.NoError(t, err)
	dec, err := Decode(enc, len(raw), opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestPackBitsRoundTripRuns(t *testing.T) {
	opts, err := New(32773)
	require.NoError(t, err)
	raw := append(append(make([]byte, 0), bytesOf(0xAA, 10)...), bytesOf(0x00, 200)...)
	raw = append(raw, []byte{1, 2, 3, 4, 5}...)
	enc, err := Encode(raw, opts)
	require.NoError(t, err)
	dec, err := Decode(enc, len(raw), opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestLZWRoundTrip(t *testing.T) {
	opts, err := New(5)
	require.NoError(t, err)
	cases := [][]byte{
		randomBytes(500, 3),
		bytesOf(0x42, 300),
		[]byte("the quick brown fox jumps over the lazy dog, the quick brown fox"),
	}
	for _, raw := range cases {
		enc, err := Encode(raw, opts)
		require.NoError(t, err)
		dec, err := Decode(enc, len(raw), opts)
		require.NoError(t, err)
		assert.Equal(t, raw, dec)
	}
}

func TestDeflateRoundTrip(t *testing.T) {
	opts, err := New(8)
	require.NoError(t, err)
	raw := randomBytes(4096, 4)
	enc, err := Encode(raw, opts)
	require.NoError(t, err)
	dec, err := Decode(enc, len(raw), opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestLookupUnknownCompressionErrors(t *testing.T) {
	_, err := Lookup(9999)
	assert.Error(t, err)
}

func TestExternalRegistryGZIP(t *testing.T) {
	opts, err := New(CompressionCodeGZIPExternal)
	require.NoError(t, err)
	raw := randomBytes(2048, 5)
	enc, err := Encode(raw, opts)
	require.NoError(t, err)
	dec, err := Decode(enc, len(raw), opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestExternalRegistryXZ(t *testing.T) {
	opts, err := New(CompressionCodeXZExternal)
	require.NoError(t, err)
	raw := randomBytes(2048, 6)
	enc, err := Encode(raw, opts)
	require.NoError(t, err)
	dec, err := Decode(enc, len(raw), opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestHorizontalPredictorRoundTrip(t *testing.T) {
	opts, err := New(1, WithPredictor(ifd.PredictorHorizontal), WithSampleGeometry(ifd.SampleTypeUint8, 1, 8, 4))
	require.NoError(t, err)
	raw := randomBytes(8*4, 7)
	diffed, err := ApplyPredictor(raw, opts)
	require.NoError(t, err)
	restored, err := UndoPredictor(diffed, opts)
	require.NoError(t, err)
	assert.Equal(t, raw, restored)
}

func TestInterleaveSeparateRoundTrip(t *testing.T) {
	opts, err := New(1, WithSampleGeometry(ifd.SampleTypeUint8, 3, 4, 4))
	require.NoError(t, err)
	chunky := randomBytes(4*4*3, 8)
	planes, err := Separate(chunky, opts)
	require.NoError(t, err)
	require.Len(t, planes, 3)
	back, err := Interleave(planes, opts)
	require.NoError(t, err)
	assert.Equal(t, chunky, back)
}

// TestLZWRoundTripLargeTable exercises table growth well past the
// 9-to-10-bit code-width boundary (511 entries), the regime where an
// off-by-one between Encode's and Decode's bump check corrupts output.
func TestLZWRoundTripLargeTable(t *testing.T) {
	opts, err := New(5)
	require.NoError(t, err)
	raw := randomBytes(20000, 42)
	enc, err := Encode(raw, opts)
	require.NoError(t, err)
	dec, err := Decode(enc, len(raw), opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestDeflateLevelFromLossless(t *testing.T) {
	assert.Equal(t, 0, deflateLevelFromLossless(0))
	assert.Equal(t, 1, deflateLevelFromLossless(0.05))
	assert.Equal(t, 9, deflateLevelFromLossless(1))
	assert.Equal(t, 9, deflateLevelFromLossless(1.5))
}

// TestHorizontalPredictorHonorsByteOrder confirms the predictor interprets
// multi-byte samples using the configured byte order rather than always
// assuming little-endian: a two-pixel, 16-bit row differenced under
// BigEndian must produce the BigEndian encoding of the arithmetic
// difference, not the LittleEndian one.
func TestHorizontalPredictorHonorsByteOrder(t *testing.T) {
	opts, err := New(1,
		WithPredictor(ifd.PredictorHorizontal),
		WithSampleGeometry(ifd.SampleTypeUint16, 1, 2, 1),
		WithByteOrder(binary.BigEndian),
	)
	require.NoError(t, err)

	raw := make([]byte, 4)
	binary.BigEndian.PutUint16(raw[0:2], 0x0100)
	binary.BigEndian.PutUint16(raw[2:4], 0x0105)

	diffed, err := ApplyPredictor(raw, opts)
	require.NoError(t, err)

	want := make([]byte, 4)
	binary.BigEndian.PutUint16(want[0:2], 0x0100)
	binary.BigEndian.PutUint16(want[2:4], 5)
	assert.Equal(t, want, diffed)

	restored, err := UndoPredictor(diffed, opts)
	require.NoError(t, err)
	assert.Equal(t, raw, restored)
}

func TestNoneDecodeTruncatesAndPads(t *testing.T) {
	opts, err := New(1)
	require.NoError(t, err)

	dec, err := Decode([]byte{1, 2, 3, 4, 5}, 3, opts)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, dec)

	dec, err = Decode([]byte{1, 2}, 5, opts)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0, 0, 0}, dec)
}

func TestCCITTRLERegistered(t *testing.T) {
	c, err := Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, "ccitt-g3", c.Name())
}

func TestCCITTEncodeUnsupported(t *testing.T) {
	opts, err := New(4, WithSampleGeometry(ifd.SampleTypeBit, 1, 8, 8))
	require.NoError(t, err)
	_, err = Encode(make([]byte, 8), opts)
	assert.Error(t, err)
}
