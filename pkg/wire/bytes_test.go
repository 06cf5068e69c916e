package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU8(0xAB)
	w.WriteBool(true)
	w.WriteU16(1234)
	w.WriteU32(0xDEADBEEF)
	w.WriteU64(0x0102030405060708)
	w.WriteF32(3.5)
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteString("hello")

	r := NewReader(w.Bytes())

	u8, err := r.ReadU8()
	require.NoError(t, err)
	require.Equal(t, uint8(0xAB), u8)

	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	u16, err := r.ReadU16()
	require.NoError(t, err)
	require.Equal(t, uint16(1234), u16)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := r.ReadU64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), u64)

	f32, err := r.ReadF32()
	require.NoError(t, err)
	require.Equal(t, float32(3.5), f32)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, bs)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	require.False(t, r.HasMore())
}

func TestReader_ShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadU32()
	require.ErrorIs(t, err, ErrShortBuffer)
}
