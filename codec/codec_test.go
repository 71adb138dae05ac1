package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackUint64(t *testing.T) {
	p := NewPacker(8)
	p.PackUint64(0x0102030405060708)
	require.NoError(t, p.Err)

	u := NewUnpacker(p.Bytes)
	require.Equal(t, uint64(0x0102030405060708), u.UnpackUint64())
	require.NoError(t, u.Err)
	require.True(t, u.Done())
}

func TestPackUnpackVarBytes(t *testing.T) {
	p := NewPacker(0)
	p.PackVarBytes([]byte("hello"))

	u := NewUnpacker(p.Bytes)
	require.Equal(t, []byte("hello"), u.UnpackVarBytes())
	require.True(t, u.Done())
}

func TestPackUnpackVector(t *testing.T) {
	items := []uint64{1, 2, 3}
	p := NewPacker(0)
	p.PackVector(len(items), func(i int) {
		p.PackUint64(items[i])
	})

	var got []uint64
	u := NewUnpacker(p.Bytes)
	u.UnpackVector(func(i int) {
		got = append(got, u.UnpackUint64())
	})
	require.NoError(t, u.Err)
	require.Equal(t, items, got)
}

func TestUnpackShortRead(t *testing.T) {
	u := NewUnpacker([]byte{0x00})
	u.UnpackUint64()
	require.ErrorIs(t, u.Err, ErrShortRead)
}

func TestVarBytesLengthMismatchIsShortRead(t *testing.T) {
	// length prefix claims 10 bytes follow, but only 2 are present
	u := NewUnpacker([]byte{0x00, 0x0a, 0x01, 0x02})
	u.UnpackVarBytes()
	require.ErrorIs(t, u.Err, ErrShortRead)
}

func TestPackVarBytesTooLong(t *testing.T) {
	p := NewPacker(0)
	p.PackVarBytes(make([]byte, 0x10000))
	require.ErrorIs(t, p.Err, ErrUnexpectedValue)
}
