package symstream

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ggoodman/symstream/supply"
)

// Request is one read against a stream. Offset is the absolute number of
// bytes the reader has consumed since the session was opened; transports
// track it and resubmit it with every read. Capacity is how many bytes the
// destination can accept.
type Request struct {
	Offset   uint64
	Capacity int
}

// Serve writes up to req.Capacity bytes of the symbol stream to sink and
// returns how many bytes it wrote. A nil counter means an unbounded supply.
//
// The position within the current symbol is derived from req.Offset, so Serve
// keeps no state of its own. A symbol whose bytes straddle two reads is
// charged against counter by the read that delivers its last byte, and only
// then. Whole symbols are reserved with an atomic decrement before they are
// written, so a stale Load can shorten a read but never lengthen it.
//
// Charges are not refunded. If sink fails after a charge, the symbols that
// were charged but not fully written are lost to every session holding the
// counter, and the returned count covers only the bytes sink accepted.
//
// Serve returns 0 with a nil error only when req.Capacity is 0 or the supply
// is exhausted with no partial symbol left to finish.
func Serve(ctx context.Context, req Request, counter supply.Counter, sym Symbol, sink Sink) (int, error) {
	w := sym.Width()
	if w == 0 {
		return 0, ErrSymbolWidth
	}
	if req.Capacity < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCapacity, req.Capacity)
	}
	if req.Offset > math.MaxInt64-uint64(req.Capacity) {
		return 0, fmt.Errorf("%w: offset %d capacity %d", ErrOffsetOverflow, req.Offset, req.Capacity)
	}

	budget := req.Capacity
	written := 0
	if budget == 0 {
		return 0, nil
	}

	// Finish the symbol a previous read left straddled.
	if phase := int(req.Offset % uint64(w)); phase != 0 {
		need := w - phase
		take := min(budget, need)
		if take == need && counter != nil {
			if err := counter.DecrementBy(ctx, 1); err != nil {
				if errors.Is(err, supply.ErrUnderflow) {
					// Shared supply drained by other sessions since the prefix went out.
					return 0, nil
				}
				return 0, fmt.Errorf("charge straddled symbol: %w", err)
			}
		}
		n, err := writeFull(sink, sym.b[phase:phase+take])
		written += n
		if err != nil {
			return written, err
		}
		budget -= take
		if take < need {
			return written, nil
		}
	}

	whole := budget / w
	if counter != nil && whole > 0 {
		reserved, err := reserve(ctx, counter, uint64(whole))
		if err != nil {
			return written, err
		}
		whole = int(reserved)
	}
	n, err := sym.writeRepeated(sink, whole)
	written += n
	if err != nil {
		return written, err
	}
	budget -= whole * w

	// Leave a prefix of the next symbol for the following read to complete.
	if budget > 0 && budget < w {
		more := counter == nil
		if !more {
			remaining, err := counter.Load(ctx)
			if err != nil {
				return written, fmt.Errorf("load supply: %w", err)
			}
			more = remaining > 0
		}
		if more {
			n, err := writeFull(sink, sym.b[:budget])
			written += n
			if err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

// reserve takes up to want symbols from counter and returns how many it took.
// Load bounds the attempt; a concurrent decrement that makes the bound stale
// shows up as ErrUnderflow and the attempt is retried against a fresh Load.
func reserve(ctx context.Context, counter supply.Counter, want uint64) (uint64, error) {
	for {
		remaining, err := counter.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("load supply: %w", err)
		}
		n := min(want, remaining)
		if n == 0 {
			return 0, nil
		}
		err = counter.DecrementBy(ctx, n)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, supply.ErrUnderflow) {
			return 0, fmt.Errorf("reserve %d symbols: %w", n, err)
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
}
