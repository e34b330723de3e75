package symstream

import "io"

// Sink receives the bytes produced by Serve. Serve never asks a Sink to
// accept more than the request's capacity.
type Sink interface {
	Write(p []byte) (n int, err error)
}

// BufferSink is a Sink over a caller-supplied buffer. Writes past the end of
// the buffer fail with ErrSinkFull after copying what fits.
type BufferSink struct {
	buf []byte
	n   int
}

func NewBufferSink(p []byte) *BufferSink {
	return &BufferSink{buf: p}
}

func (s *BufferSink) Write(p []byte) (int, error) {
	k := copy(s.buf[s.n:], p)
	s.n += k
	if k < len(p) {
		return k, ErrSinkFull
	}
	return k, nil
}

// Len returns the number of bytes written so far.
func (s *BufferSink) Len() int { return s.n }

// Bytes returns the written prefix of the buffer.
func (s *BufferSink) Bytes() []byte { return s.buf[:s.n] }

// Available returns how many more bytes fit.
func (s *BufferSink) Available() int { return len(s.buf) - s.n }

func writeFull(w io.Writer, p []byte) (int, error) {
	n, err := w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

var _ Sink = (*BufferSink)(nil)
