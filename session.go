package symstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/ggoodman/symstream/supply"
)

// Session is one open handle on a Device. It holds nothing but a reference
// to its counter; the position within a symbol comes from each request's
// offset. A Session is safe for concurrent use, though concurrent reads of
// one session only make sense if the caller coordinates offsets.
type Session struct {
	id      string
	dev     *Device
	counter supply.Counter // nil in ModeUnbounded
	private bool
	log     *slog.Logger
	closed  atomic.Bool
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Device returns the device the session was opened on.
func (s *Session) Device() *Device { return s.dev }

// Remaining returns the symbols left in the session's supply. ok is false
// in ModeUnbounded.
func (s *Session) Remaining(ctx context.Context) (n uint64, ok bool, err error) {
	if s.counter == nil {
		return 0, false, nil
	}
	n, err = s.counter.Load(ctx)
	return n, true, err
}

// Serve runs one read against the session's supply. See the package-level
// Serve for the accounting rules.
func (s *Session) Serve(ctx context.Context, req Request, sink Sink) (int, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	d := s.dev
	n, err := Serve(ctx, req, s.counter, d.symbol, sink)
	d.metrics.IncCounter(MetricReads, d.tags)
	d.metrics.ObserveHistogram(MetricReadBytes, float64(n), d.tags)
	if err != nil {
		d.metrics.IncCounter(MetricReadErrors, d.tags)
		s.log.WarnContext(ctx, "session.read.fail",
			slog.Uint64("offset", req.Offset),
			slog.Int("capacity", req.Capacity),
			slog.Int("n", n),
			slog.String("err", err.Error()),
		)
		return n, err
	}
	if n == 0 && req.Capacity > 0 {
		d.metrics.IncCounter(MetricStreamsEnded, d.tags)
		s.log.DebugContext(ctx, "session.read.eof", slog.Uint64("offset", req.Offset))
	}
	return n, nil
}

// ReadOffset serves a read of len(p) bytes at stream offset off into p.
func (s *Session) ReadOffset(ctx context.Context, p []byte, off uint64) (int, error) {
	return s.Serve(ctx, Request{Offset: off, Capacity: len(p)}, NewBufferSink(p))
}

// Close releases the session's counter: a private counter is destroyed, the
// shared counter survives for other holders. Closing twice returns
// ErrSessionClosed.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrSessionClosed
	}
	d := s.dev
	d.metrics.IncCounter(MetricSessionsClosed, d.tags)

	var err error
	switch {
	case s.private:
		if derr := d.store.Destroy(context.WithoutCancel(ctx), d.sessionKey(s.id)); derr != nil {
			err = fmt.Errorf("destroy session supply: %w", derr)
		}
	case d.shared != nil:
		err = d.releaseShared(ctx)
	}
	if derr := d.sessionDone(); derr != nil {
		err = errors.Join(err, fmt.Errorf("close supply store: %w", derr))
	}
	if err != nil {
		s.log.ErrorContext(ctx, "session.close.fail", slog.String("err", err.Error()))
		return err
	}
	s.log.InfoContext(ctx, "session.close.ok")
	return nil
}

// Detach releases this process's handle without destroying a private
// supply, so the session can still be resumed elsewhere. A shared reference
// is released as in Close.
func (s *Session) Detach(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrSessionClosed
	}
	d := s.dev
	var err error
	if !s.private && d.shared != nil {
		err = d.releaseShared(ctx)
	}
	if derr := d.sessionDone(); derr != nil {
		err = errors.Join(err, fmt.Errorf("close supply store: %w", derr))
	}
	if err != nil {
		s.log.ErrorContext(ctx, "session.detach.fail", slog.String("err", err.Error()))
		return err
	}
	s.log.DebugContext(ctx, "session.detach.ok")
	return nil
}

// Reader adapts a Session to io.Reader by tracking the cumulative offset the
// way a transport does. A zero-byte read becomes io.EOF.
type Reader struct {
	ctx context.Context
	s   *Session
	off uint64
}

// NewReader returns a Reader starting at offset 0.
func (s *Session) NewReader(ctx context.Context) *Reader {
	return &Reader{ctx: ctx, s: s}
}

// NewReaderAt returns a Reader resuming at off.
func (s *Session) NewReaderAt(ctx context.Context, off uint64) *Reader {
	return &Reader{ctx: ctx, s: s, off: off}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.s.ReadOffset(r.ctx, p, r.off)
	r.off += uint64(n)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Offset returns the number of bytes read so far.
func (r *Reader) Offset() uint64 { return r.off }

var _ io.Reader = (*Reader)(nil)
