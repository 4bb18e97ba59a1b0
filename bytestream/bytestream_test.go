package bytestream

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTripScalars(t *testing.T) {
	bs, err := Open(NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)

	require.NoError(t, bs.WriteU16(0x4949))
	require.NoError(t, bs.WriteU32(0xdeadbeef))
	require.NoError(t, bs.WriteU64(0x0123456789abcdef))
	require.NoError(t, bs.WriteI16(-5))
	require.NoError(t, bs.WriteF32(3.5))
	require.NoError(t, bs.WriteF64(-2.25))

	require.NoError(t, bs.Seek(0))
	u16, err := bs.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4949), u16)

	u32, err := bs.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := bs.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789abcdef), u64)

	i16, err := bs.ReadI16()
	require.NoError(t, err)
	assert.Equal(t, int16(-5), i16)

	f32, err := bs.ReadF32()
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f32)

	f64, err := bs.ReadF64()
	require.NoError(t, err)
	assert.Equal(t, -2.25, f64)
}

func TestShortReadAtEOFReturnsCountNotError(t *testing.T) {
	bs, err := Open(NewMemoryBackend(), binary.BigEndian)
	require.NoError(t, err)
	_, err = bs.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	require.NoError(t, bs.Seek(0))
	buf := make([]byte, 8)
	n, err := bs.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSeekNegativeErrors(t *testing.T) {
	bs, err := Open(NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	assert.Error(t, bs.Seek(-1))
}

func TestWriteAtDoesNotDisturbCursor(t *testing.T) {
	bs, err := Open(NewMemoryBackend(), binary.LittleEndian)
	require.NoError(t, err)
	require.NoError(t, bs.Seek(10))
	_, err = bs.WriteAt([]byte{0xaa}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bs.Offset())
}
