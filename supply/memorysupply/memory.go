package memorysupply

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/symstream/supply"
)

// Counter is a lock-free supply.Counter.
type Counter struct {
	n atomic.Uint64
}

// NewCounter returns a standalone counter holding initial.
func NewCounter(initial uint64) *Counter {
	c := &Counter{}
	c.n.Store(initial)
	return c
}

func (c *Counter) Load(ctx context.Context) (uint64, error) {
	return c.n.Load(), nil
}

func (c *Counter) DecrementBy(ctx context.Context, n uint64) error {
	if n == 0 {
		return nil
	}
	for {
		cur := c.n.Load()
		if n > cur {
			return supply.ErrUnderflow
		}
		if c.n.CompareAndSwap(cur, cur-n) {
			return nil
		}
	}
}

// Store is an in-memory supply.Store.
type Store struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	holders  map[string]int
}

func New() *Store {
	return &Store{counters: make(map[string]*Counter), holders: make(map[string]int)}
}

func (s *Store) Create(ctx context.Context, key string, initial uint64) (supply.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[key]; ok {
		return c, nil
	}
	c := NewCounter(initial)
	s.counters[key] = c
	return c, nil
}

func (s *Store) Lookup(ctx context.Context, key string) (supply.Counter, error) {
	s.mu.RLock()
	c, ok := s.counters[key]
	s.mu.RUnlock()
	if !ok {
		return nil, supply.ErrCounterNotFound
	}
	return c, nil
}

func (s *Store) Destroy(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.counters, key)
	delete(s.holders, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Acquire(ctx context.Context, key string, initial uint64) (supply.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok {
		c = NewCounter(initial)
		s.counters[key] = c
	}
	s.holders[key]++
	return c, nil
}

func (s *Store) Release(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[key]--
	if s.holders[key] > 0 {
		return false, nil
	}
	delete(s.holders, key)
	delete(s.counters, key)
	return true, nil
}

// Keys returns the keys of all live counters in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.counters))
	for k := range s.counters {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.counters = make(map[string]*Counter)
	s.holders = make(map[string]int)
	s.mu.Unlock()
	return nil
}

// Interface compliance
var (
	_ supply.Counter = (*Counter)(nil)
	_ supply.Store   = (*Store)(nil)
)
