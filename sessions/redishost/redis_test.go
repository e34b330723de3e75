package redishost

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/symstream/sessions"
	"github.com/ggoodman/symstream/sessions/sessionhosttest"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestHost(t *testing.T) (*Host, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	cl := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cl.Close() })
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewWithClient(cl, "test:", WithClock(clock.Now)), mr, clock
}

func TestRedisSessionHost(t *testing.T) {
	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessionhosttest.Harness {
		h, mr, clock := newTestHost(t)
		return sessionhosttest.Harness{
			Host: h,
			Advance: func(d time.Duration) {
				clock.Advance(d)
				mr.FastForward(d)
			},
		}
	})
}

func TestSessionKeyCarriesTTL(t *testing.T) {
	h, mr, _ := newTestHost(t)
	ctx := context.Background()

	if err := h.CreateSession(ctx, &sessions.SessionMetadata{SessionID: "abc", TTL: time.Minute}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !mr.Exists("test:session:abc") {
		t.Fatalf("expected metadata under prefixed key; keys=%v", mr.Keys())
	}
	if ttl := mr.TTL("test:session:abc"); ttl != time.Minute {
		t.Fatalf("expected key ttl 1m, got %s", ttl)
	}

	mr.FastForward(45 * time.Second)
	if err := h.TouchSession(ctx, "abc"); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	if ttl := mr.TTL("test:session:abc"); ttl != time.Minute {
		t.Fatalf("expected touch to reset ttl to 1m, got %s", ttl)
	}
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	h, err := New(Config{RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mr.Close()
	if _, err := New(Config{RedisAddr: mr.Addr()}); err == nil {
		t.Fatalf("expected ping failure against stopped server")
	}
}
