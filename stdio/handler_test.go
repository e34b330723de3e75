package stdio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"syscall"
	"testing"

	"github.com/ggoodman/symstream"
)

type brokenUser struct{}

func (brokenUser) CurrentUserID() (string, error) { return "", errors.New("no passwd entry") }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDevice(t *testing.T, opts ...symstream.Option) *symstream.Device {
	t.Helper()
	opts = append([]symstream.Option{symstream.WithLogger(discardLogger())}, opts...)
	dev, err := symstream.Register(context.Background(), "foxes", opts...)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { _ = dev.Close(context.Background()) })
	return dev
}

func TestServeDrainsSession(t *testing.T) {
	tests := []struct {
		name      string
		blockSize int
		supply    uint64
		records   int
		partial   int
	}{
		{"aligned", 8, 4, 2, 0},
		{"misaligned", 3, 4, 6, 1},
		{"one byte", 1, 2, 8, 0},
		{"large block", 4096, 5, 1, 1},
		{"empty supply", 16, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := mustDevice(t, symstream.WithSupply(tt.supply))
			var out bytes.Buffer
			h := NewHandler(dev,
				WithWriter(&out),
				WithLogger(discardLogger()),
				WithBlockSize(tt.blockSize),
				WithUserProvider(StaticUser("vixen")),
			)
			st, err := h.Serve(context.Background())
			if err != nil {
				t.Fatalf("Serve: %v", err)
			}
			want := bytes.Repeat(symstream.Fox.Bytes(), int(tt.supply))
			if !bytes.Equal(out.Bytes(), want) {
				t.Fatalf("output = %x, want %x", out.Bytes(), want)
			}
			if st.Bytes != uint64(len(want)) || st.Records != tt.records || st.Partial != tt.partial {
				t.Fatalf("stats = %+v, want bytes=%d records=%d partial=%d", st, len(want), tt.records, tt.partial)
			}
			if dev.OpenSessions() != 0 {
				t.Fatalf("session left open")
			}
		})
	}
}

func TestServeCountLimitsUnboundedStream(t *testing.T) {
	dev := mustDevice(t, symstream.WithMode(symstream.ModeUnbounded))
	var out bytes.Buffer
	h := NewHandler(dev, WithWriter(&out), WithLogger(discardLogger()), WithBlockSize(6), WithCount(3), WithUserProvider(brokenUser{}))
	st, err := h.Serve(context.Background())
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.Len() != 18 || st.Records != 3 {
		t.Fatalf("expected 3 records of 6 bytes, got %d bytes %+v", out.Len(), st)
	}
	// 18 bytes is four foxes and half of a fifth.
	if !bytes.Equal(out.Bytes()[:16], bytes.Repeat(symstream.Fox.Bytes(), 4)) {
		t.Fatalf("output = %x", out.Bytes())
	}
}

type pipeWriter struct {
	budget int
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	if w.budget <= 0 {
		return 0, syscall.EPIPE
	}
	n := min(len(p), w.budget)
	w.budget -= n
	if n < len(p) {
		return n, syscall.EPIPE
	}
	return n, nil
}

func TestServeStopsQuietlyOnClosedPipe(t *testing.T) {
	dev := mustDevice(t, symstream.WithMode(symstream.ModeUnbounded))
	h := NewHandler(dev, WithWriter(&pipeWriter{budget: 10}), WithLogger(discardLogger()), WithBlockSize(4), WithUserProvider(StaticUser("vixen")))
	st, err := h.Serve(context.Background())
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if st.Bytes != 10 {
		t.Fatalf("expected 10 bytes before the pipe closed, got %d", st.Bytes)
	}
}

func TestServeRespectsCancellation(t *testing.T) {
	dev := mustDevice(t, symstream.WithMode(symstream.ModeUnbounded))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewHandler(dev, WithWriter(io.Discard), WithLogger(discardLogger()), WithUserProvider(StaticUser("vixen")))
	if _, err := h.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if dev.OpenSessions() != 0 {
		t.Fatalf("session left open after cancellation")
	}
}

func TestServeRejectsUnreadableDevice(t *testing.T) {
	dev := mustDevice(t, symstream.WithPerm(0o222))
	h := NewHandler(dev, WithWriter(io.Discard), WithLogger(discardLogger()))
	if _, err := h.Serve(context.Background()); !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected fs.ErrPermission, got %v", err)
	}
}
