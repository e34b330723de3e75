package symstream

import (
	"encoding/hex"
	"fmt"
	"io"
)

// MaxSymbolWidth is the widest symbol a stream can carry.
const MaxSymbolWidth = 8

// runBytes is the minimum size of the pre-built run used to emit whole
// symbols in batches.
const runBytes = 512

// Fox is U+1F98A encoded as UTF-8.
var Fox = MustSymbol([]byte("\xF0\x9F\xA6\x8A"))

// Symbol is an immutable fixed-width byte pattern. The zero value is not a
// valid symbol.
type Symbol struct {
	b   []byte
	run []byte // b repeated, len(run) is a multiple of len(b)
}

// NewSymbol copies b into a Symbol.
func NewSymbol(b []byte) (Symbol, error) {
	if len(b) == 0 || len(b) > MaxSymbolWidth {
		return Symbol{}, fmt.Errorf("%w: %d bytes (want 1..%d)", ErrSymbolWidth, len(b), MaxSymbolWidth)
	}
	sym := Symbol{b: append([]byte(nil), b...)}
	reps := (runBytes + len(b) - 1) / len(b)
	sym.run = make([]byte, 0, reps*len(b))
	for i := 0; i < reps; i++ {
		sym.run = append(sym.run, b...)
	}
	return sym, nil
}

// MustSymbol is like NewSymbol but panics on error.
func MustSymbol(b []byte) Symbol {
	s, err := NewSymbol(b)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSymbol decodes a hex-encoded symbol such as "f09fa68a".
func ParseSymbol(s string) (Symbol, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Symbol{}, fmt.Errorf("%w: %v", ErrSymbolWidth, err)
	}
	return NewSymbol(b)
}

// Width returns the symbol's size in bytes.
func (s Symbol) Width() int { return len(s.b) }

// Bytes returns a copy of the symbol.
func (s Symbol) Bytes() []byte { return append([]byte(nil), s.b...) }

// String returns the hex encoding of the symbol.
func (s Symbol) String() string { return hex.EncodeToString(s.b) }

// writeRepeated writes count whole symbols to w in run-sized batches.
func (s Symbol) writeRepeated(w io.Writer, count int) (int, error) {
	perRun := len(s.run) / len(s.b)
	written := 0
	for count > 0 {
		k := min(count, perRun)
		n, err := writeFull(w, s.run[:k*len(s.b)])
		written += n
		if err != nil {
			return written, err
		}
		count -= k
	}
	return written, nil
}
