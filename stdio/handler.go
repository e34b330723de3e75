package stdio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/ggoodman/symstream"
)

const defaultBlockSize = 4096

// Handler streams one session of a device to an io.Writer. By default it
// writes to os.Stdout and identifies the reader as the current OS user.
type Handler struct {
	dev          *symstream.Device
	w            io.Writer
	l            *slog.Logger
	blockSize    int
	count        int
	userProvider UserProvider
}

// Stats describes a finished Serve call, in dd's terms.
type Stats struct {
	// Records is the number of reads that produced data.
	Records int
	// Partial counts reads that returned less than the block size.
	Partial int
	Bytes   uint64
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(dev *symstream.Device, opts ...Option) *Handler {
	h := &Handler{
		dev:          dev,
		w:            os.Stdout,
		l:            slog.Default(),
		blockSize:    defaultBlockSize,
		userProvider: OSUserProvider{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve opens a session, copies it to the writer one block at a time and
// closes it. It returns when the stream ends, the count is reached, the
// reader on the other side of a pipe goes away, or ctx is cancelled.
func (h *Handler) Serve(ctx context.Context) (Stats, error) {
	var st Stats
	start := time.Now()

	if h.dev.Perm()&0o444 == 0 {
		return st, fmt.Errorf("open %s: %w", h.dev.Name(), fs.ErrPermission)
	}

	uid, err := h.userProvider.CurrentUserID()
	if err != nil {
		h.l.WarnContext(ctx, "stdio.user.fail", slog.String("err", err.Error()))
		uid = "unknown"
	}

	sess, err := h.dev.Open(ctx)
	if err != nil {
		return st, err
	}
	log := h.l.With(slog.String("session", sess.ID()), slog.String("user_id", uid))
	log.InfoContext(ctx, "stdio.stream.start", slog.Int("bs", h.blockSize), slog.Int("count", h.count))

	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			log.ErrorContext(ctx, "stdio.session.close.fail", slog.String("err", err.Error()))
		}
	}()

	for i := 0; h.count == 0 || i < h.count; i++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		n, err := sess.Serve(ctx, symstream.Request{Offset: st.Bytes, Capacity: h.blockSize}, h.w)
		st.Bytes += uint64(n)
		if n > 0 {
			st.Records++
			if n < h.blockSize {
				st.Partial++
			}
		}
		if err != nil {
			if errors.Is(err, syscall.EPIPE) {
				log.InfoContext(ctx, "stdio.stream.pipe_closed", slog.Uint64("bytes", st.Bytes))
				return st, nil
			}
			log.ErrorContext(ctx, "stdio.stream.fail", slog.String("err", err.Error()))
			return st, err
		}
		if n == 0 {
			break
		}
	}

	log.InfoContext(ctx, "stdio.stream.done",
		slog.Int("records", st.Records),
		slog.Int("partial", st.Partial),
		slog.Uint64("bytes", st.Bytes),
		slog.Duration("dur", time.Since(start)),
	)
	return st, nil
}
