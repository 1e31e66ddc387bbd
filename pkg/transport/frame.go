package transport

import (
	"bufio"
	"io"
)

// FrameReader splits a byte stream into NUL terminated frames.
type FrameReader struct {
	r   *bufio.Reader
	max int
	buf []byte
}

// NewFrameReader creates a FrameReader. Frames longer than max are
// truncated to max+1 bytes, so the receiver can still reject them.
func NewFrameReader(r io.Reader, max int) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r), max: max}
}

// ReadFrame returns the next frame without the terminator. The returned
// slice is reused by the next call.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	f.buf = f.buf[:0]
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0 {
			return f.buf, nil
		}
		if len(f.buf) <= f.max {
			f.buf = append(f.buf, b)
		}
	}
}

// Terminate returns frame with exactly one NUL terminator.
func Terminate(frame []byte) []byte {
	if n := len(frame); n > 0 && frame[n-1] == 0 {
		return frame
	}
	return append(frame, 0)
}
