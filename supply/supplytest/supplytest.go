// Package supplytest is a conformance suite for supply.Store implementations.
package supplytest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/symstream/supply"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StoreFactory creates a new Store instance for testing.
type StoreFactory func(t *testing.T) supply.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("Create_InitializesCount", func(t *testing.T) { testCreateInitializesCount(t, factory) })
	t.Run("Create_KeepsExistingCount", func(t *testing.T) { testCreateKeepsExistingCount(t, factory) })
	t.Run("Lookup_MissingKey", func(t *testing.T) { testLookupMissingKey(t, factory) })
	t.Run("Lookup_SharesCount", func(t *testing.T) { testLookupSharesCount(t, factory) })
	t.Run("Destroy_RemovesCounter", func(t *testing.T) { testDestroyRemovesCounter(t, factory) })
	t.Run("Acquire_SharesCountAcrossHolders", func(t *testing.T) { testAcquireSharesCount(t, factory) })
	t.Run("Release_DestroysAtLastHolder", func(t *testing.T) { testReleaseDestroysAtLastHolder(t, factory) })
	t.Run("Acquire_AfterLastReleaseStartsFresh", func(t *testing.T) { testAcquireAfterLastRelease(t, factory) })

	t.Run("Decrement_ReducesCount", func(t *testing.T) { testDecrementReducesCount(t, factory) })
	t.Run("Decrement_ZeroIsNoop", func(t *testing.T) { testDecrementZeroIsNoop(t, factory) })
	t.Run("Decrement_UnderflowLeavesCountUnchanged", func(t *testing.T) { testDecrementUnderflow(t, factory) })
	t.Run("Decrement_ConcurrentNeverBelowZero", func(t *testing.T) { testConcurrentDecrements(t, factory) })
}

func newStore(t *testing.T, factory StoreFactory) supply.Store {
	t.Helper()
	s := factory(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustLoad(t *testing.T, ctx context.Context, c supply.Counter) uint64 {
	t.Helper()
	n, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return n
}

func testCreateInitializesCount(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)

	c, err := s.Create(ctx, uuid.NewString(), 200)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := mustLoad(t, ctx, c); got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
}

func testCreateKeepsExistingCount(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)
	key := uuid.NewString()

	c1, err := s.Create(ctx, key, 10)
	if err != nil {
		t.Fatalf("create 1: %v", err)
	}
	if err := c1.DecrementBy(ctx, 3); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	c2, err := s.Create(ctx, key, 1000)
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}
	if got := mustLoad(t, ctx, c2); got != 7 {
		t.Fatalf("expected existing count 7, got %d", got)
	}
}

func testLookupMissingKey(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)

	_, err := s.Lookup(ctx, uuid.NewString())
	if !errors.Is(err, supply.ErrCounterNotFound) {
		t.Fatalf("expected ErrCounterNotFound, got %v", err)
	}
}

func testLookupSharesCount(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)
	key := uuid.NewString()

	c1, err := s.Create(ctx, key, 5)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c2, err := s.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := c2.DecrementBy(ctx, 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got := mustLoad(t, ctx, c1); got != 3 {
		t.Fatalf("expected 3 through original handle, got %d", got)
	}
}

func testDestroyRemovesCounter(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)
	key := uuid.NewString()

	if _, err := s.Create(ctx, key, 5); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Destroy(ctx, key); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := s.Lookup(ctx, key); !errors.Is(err, supply.ErrCounterNotFound) {
		t.Fatalf("expected ErrCounterNotFound after destroy, got %v", err)
	}
	if err := s.Destroy(ctx, key); err != nil {
		t.Fatalf("destroy of missing key should succeed, got %v", err)
	}
}

func testDecrementReducesCount(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)

	c, err := s.Create(ctx, uuid.NewString(), 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.DecrementBy(ctx, 4); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := c.DecrementBy(ctx, 6); err != nil {
		t.Fatalf("decrement to zero: %v", err)
	}
	if got := mustLoad(t, ctx, c); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func testDecrementZeroIsNoop(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)

	c, err := s.Create(ctx, uuid.NewString(), 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.DecrementBy(ctx, 0); err != nil {
		t.Fatalf("decrement by zero: %v", err)
	}
}

func testDecrementUnderflow(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)

	c, err := s.Create(ctx, uuid.NewString(), 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.DecrementBy(ctx, 4); !errors.Is(err, supply.ErrUnderflow) {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
	if got := mustLoad(t, ctx, c); got != 3 {
		t.Fatalf("underflow must not mutate: expected 3, got %d", got)
	}
}

func testConcurrentDecrements(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)

	const initial = 100
	c, err := s.Create(ctx, uuid.NewString(), initial)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var taken atomic.Uint64
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		step := uint64(i%3 + 1)
		g.Go(func() error {
			for {
				err := c.DecrementBy(ctx, step)
				if errors.Is(err, supply.ErrUnderflow) {
					// A smaller step may still fit; finish with single decrements.
					for {
						if err := c.DecrementBy(ctx, 1); err != nil {
							if errors.Is(err, supply.ErrUnderflow) {
								return nil
							}
							return err
						}
						taken.Add(1)
					}
				}
				if err != nil {
					return err
				}
				taken.Add(step)
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent decrement: %v", err)
	}
	if got := taken.Load(); got != initial {
		t.Fatalf("expected exactly %d taken, got %d", initial, got)
	}
	if got := mustLoad(t, ctx, c); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
}

func testAcquireSharesCount(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)
	key := uuid.NewString()

	a, err := s.Acquire(ctx, key, 10)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := a.DecrementBy(ctx, 4); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	b, err := s.Acquire(ctx, key, 10)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if got := mustLoad(t, ctx, b); got != 6 {
		t.Fatalf("expected second holder to see 6, got %d", got)
	}
}

func testReleaseDestroysAtLastHolder(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)
	key := uuid.NewString()

	for i := 0; i < 2; i++ {
		if _, err := s.Acquire(ctx, key, 10); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	destroyed, err := s.Release(ctx, key)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if destroyed {
		t.Fatalf("expected counter to survive while a holder remains")
	}
	if _, err := s.Lookup(ctx, key); err != nil {
		t.Fatalf("lookup after first release: %v", err)
	}

	destroyed, err = s.Release(ctx, key)
	if err != nil {
		t.Fatalf("last release: %v", err)
	}
	if !destroyed {
		t.Fatalf("expected last release to destroy the counter")
	}
	if _, err := s.Lookup(ctx, key); !errors.Is(err, supply.ErrCounterNotFound) {
		t.Fatalf("expected ErrCounterNotFound after last release, got %v", err)
	}
}

func testAcquireAfterLastRelease(t *testing.T, factory StoreFactory) {
	s := newStore(t, factory)
	ctx := testCtx(t)
	key := uuid.NewString()

	c, err := s.Acquire(ctx, key, 3)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := c.DecrementBy(ctx, 3); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if _, err := s.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}

	c, err = s.Acquire(ctx, key, 3)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if got := mustLoad(t, ctx, c); got != 3 {
		t.Fatalf("expected fresh counter with 3, got %d", got)
	}
	destroyed, err := s.Release(ctx, key)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !destroyed {
		t.Fatalf("expected the holder count to restart at one")
	}
}
