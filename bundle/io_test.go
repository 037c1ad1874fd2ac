package bundle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarIntWidths(t *testing.T) {
	for _, tc := range []struct {
		value uint32
		width int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2097152, 4},
		{268435455, 4},
		{268435456, 5},
		{0xffffffff, 5},
	} {
		var buf bytes.Buffer
		out := dataOutput{w: &buf}
		require.NoError(t, out.writeVarInt(tc.value))
		require.Equal(t, tc.width, buf.Len(), "width of %d", tc.value)

		in := dataInput{r: &buf}
		got, err := in.readVarInt()
		require.NoError(t, err)
		require.Equal(t, tc.value, got)
	}
}

func TestVarIntRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	out := dataOutput{w: &buf}
	values := []uint32{0, 1, 42, 127, 128, 300, 16383, 16384, 1 << 20, 1 << 27, 1 << 30, 0xdeadbeef}
	for _, v := range values {
		require.NoError(t, out.writeVarInt(v))
	}
	in := dataInput{r: &buf}
	for _, v := range values {
		got, err := in.readVarInt()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestVarIntTooLong(t *testing.T) {
	in := dataInput{r: bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})}
	_, err := in.readVarInt()
	require.Error(t, err)
	require.Contains(t, err.Error(), "five bytes")
}

func TestWriteBytesBase(t *testing.T) {
	var buf bytes.Buffer
	out := dataOutput{w: &buf}
	payload := make([]byte, 20)
	require.NoError(t, out.writeBytes(payload, 16))
	// varint(20-16) is one byte
	require.Equal(t, 21, buf.Len())
	require.Equal(t, byte(4), buf.Bytes()[0])
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	out := dataOutput{w: &buf}
	require.NoError(t, out.writeString("grüße"))
	require.NoError(t, out.writeString(""))
	in := dataInput{r: &buf}
	s, err := in.readString()
	require.NoError(t, err)
	require.Equal(t, "grüße", s)
	s, err = in.readString()
	require.NoError(t, err)
	require.Equal(t, "", s)
}
