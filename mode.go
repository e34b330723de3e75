package symstream

import (
	"fmt"
	"strings"
)

// SupplyMode selects how a Device bounds its stream.
type SupplyMode int

const (
	// ModeUnbounded serves every read in full; no counter exists.
	ModeUnbounded SupplyMode = iota
	// ModeSession gives each session its own counter, created at Open and
	// destroyed at Close.
	ModeSession
	// ModeShared creates one counter at Register that every session of the
	// Device draws from.
	ModeShared
)

// Default initial supplies for the bounded modes.
const (
	DefaultSessionSupply uint64 = 200
	DefaultSharedSupply  uint64 = 1_000_000
)

func (m SupplyMode) String() string {
	switch m {
	case ModeUnbounded:
		return "unbounded"
	case ModeSession:
		return "session"
	case ModeShared:
		return "shared"
	default:
		return fmt.Sprintf("SupplyMode(%d)", int(m))
	}
}

// ParseSupplyMode accepts the names returned by SupplyMode.String.
func ParseSupplyMode(s string) (SupplyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unbounded", "none":
		return ModeUnbounded, nil
	case "session", "private":
		return ModeSession, nil
	case "shared":
		return ModeShared, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Bounded reports whether the mode uses a counter.
func (m SupplyMode) Bounded() bool { return m == ModeSession || m == ModeShared }

// DefaultSupply is the initial count used when none is configured.
func (m SupplyMode) DefaultSupply() uint64 {
	switch m {
	case ModeSession:
		return DefaultSessionSupply
	case ModeShared:
		return DefaultSharedSupply
	}
	return 0
}

func (m SupplyMode) valid() bool { return m >= ModeUnbounded && m <= ModeShared }
