package symstream

import "errors"

var (
	// ErrSinkFull is returned by BufferSink when a write exceeds its capacity.
	ErrSinkFull = errors.New("sink capacity exhausted")
	// ErrOffsetOverflow is returned when a request's offset, or offset plus
	// capacity, does not fit in a signed 64-bit stream position.
	ErrOffsetOverflow = errors.New("stream offset overflow")
	// ErrInvalidCapacity is returned for negative request capacities.
	ErrInvalidCapacity = errors.New("invalid read capacity")
	// ErrSymbolWidth is returned for empty symbols or symbols wider than
	// MaxSymbolWidth.
	ErrSymbolWidth = errors.New("invalid symbol width")
	// ErrInvalidMode is returned for unknown supply modes.
	ErrInvalidMode = errors.New("invalid supply mode")

	ErrSessionClosed   = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrDeviceClosed    = errors.New("device closed")
)
