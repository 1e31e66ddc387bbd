package transport

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameReader(t *testing.T) {
	r := NewFrameReader(strings.NewReader("VEL:1\x00\x00RST:\x00"+strings.Repeat("x", 10)+"\x00tail"), 8)
	expects := []string{"VEL:1", "", "RST:", "xxxxxxxxx"}
	for _, expect := range expects {
		frame, err := r.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, expect, string(frame))
	}
	_, err := r.ReadFrame()
	require.Equal(t, io.EOF, err)
}

func TestTerminate(t *testing.T) {
	require.Equal(t, []byte("a\x00"), Terminate([]byte("a")))
	require.Equal(t, []byte("a\x00"), Terminate([]byte("a\x00")))
	require.Equal(t, []byte{0}, Terminate(nil))
}

func TestPipe(t *testing.T) {
	a, b := NewPipe("test")
	var got []string
	b.OnReceive(func(frame []byte) { got = append(got, string(frame)) })
	require.NoError(t, a.Send([]byte("hello")))
	require.NoError(t, b.Send([]byte("nobody listens")))
	require.Equal(t, []string{"hello"}, got)

	a.SetReady(false)
	require.Equal(t, ErrNotReady, a.Send([]byte("x")))
	require.Equal(t, "test", a.Name())
}
