package stdio

import (
	"io"
	"log/slog"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithBlockSize sets the capacity of each read. Default: 4096.
func WithBlockSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.blockSize = n
		}
	}
}

// WithCount stops after n reads. Zero reads to the end of the stream.
func WithCount(n int) Option {
	return func(h *Handler) {
		if n >= 0 {
			h.count = n
		}
	}
}

// WithUserProvider overrides the user provider used for authless identification.
func WithUserProvider(up UserProvider) Option {
	return func(h *Handler) {
		if up != nil {
			h.userProvider = up
		}
	}
}
