// Package supply defines the counter that bounds how many whole symbols a
// stream may still deliver, and the store that owns counters by key.
//
// A Counter only ever goes down. Load is a hint that may be stale the moment
// it returns; DecrementBy is the authoritative, atomic operation and refuses
// to take the count below zero.
//
// Implementations
//
//	memorysupply : lock-free counters for a single process
//	redissupply  : Redis-backed counters shared by every process using the same key
//
// Both are exercised by the supplytest conformance suite.
package supply

import (
	"context"
	"errors"
)

var (
	// ErrUnderflow is returned by DecrementBy when n exceeds the remaining
	// count. The counter is left unchanged.
	ErrUnderflow = errors.New("supply: decrement exceeds remaining count")
	// ErrCounterNotFound is returned when a key has no counter (never
	// created, or destroyed).
	ErrCounterNotFound = errors.New("supply: counter not found")
)

// Counter is a consumption-only count of whole symbols not yet delivered.
type Counter interface {
	// Load returns the remaining count. The value is a hint only.
	Load(ctx context.Context) (uint64, error)
	// DecrementBy atomically removes n from the count. It returns
	// ErrUnderflow without mutating anything if n exceeds what remains.
	DecrementBy(ctx context.Context, n uint64) error
}

// Store creates, looks up and destroys named counters. Counters shared by
// several owners are held through Acquire and Release instead of Create and
// Destroy.
type Store interface {
	// Create initializes key to initial if it does not exist yet and returns
	// a handle to the counter stored under key either way.
	Create(ctx context.Context, key string, initial uint64) (Counter, error)
	// Lookup returns a handle to an existing counter or ErrCounterNotFound.
	Lookup(ctx context.Context, key string) (Counter, error)
	// Destroy removes the counter stored under key. Destroying a missing key
	// is not an error.
	Destroy(ctx context.Context, key string) error
	// Acquire creates key with initial if it does not exist yet and records
	// one more holder of it. The holder count lives in the store, so holders
	// in different processes see the same count.
	Acquire(ctx context.Context, key string, initial uint64) (Counter, error)
	// Release drops one holder of key and destroys the counter once no
	// holder remains, reporting whether it did.
	Release(ctx context.Context, key string) (destroyed bool, err error)
	// Close releases resources held by the store.
	Close() error
}
