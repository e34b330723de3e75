package memoryhost

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/symstream/sessions"
	"github.com/ggoodman/symstream/sessions/sessionhosttest"
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

func TestMemorySessionHost(t *testing.T) {
	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessionhosttest.Harness {
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		return sessionhosttest.Harness{
			Host:    New(WithClock(clock.Now)),
			Advance: clock.Advance,
		}
	})
}

func TestCreatePurgesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := New(WithClock(clock.Now))
	ctx := context.Background()

	if err := h.CreateSession(ctx, &sessions.SessionMetadata{SessionID: "old", TTL: time.Second}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	clock.Advance(2 * purgeInterval)
	if err := h.CreateSession(ctx, &sessions.SessionMetadata{SessionID: "new", TTL: time.Hour}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	h.mu.RLock()
	_, stale := h.sessions["old"]
	n := len(h.sessions)
	h.mu.RUnlock()
	if stale || n != 1 {
		t.Fatalf("expected expired session to be purged, have %d sessions (old present: %v)", n, stale)
	}
}

func TestCreateReplacesExpiredID(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := New(WithClock(clock.Now))
	ctx := context.Background()

	if err := h.CreateSession(ctx, &sessions.SessionMetadata{SessionID: "reused", UserID: "a", TTL: time.Second}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	clock.Advance(2 * time.Second)
	if err := h.CreateSession(ctx, &sessions.SessionMetadata{SessionID: "reused", UserID: "b", TTL: time.Hour}); err != nil {
		t.Fatalf("CreateSession over expired id: %v", err)
	}
	got, err := h.GetSession(ctx, "reused")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != "b" {
		t.Fatalf("expected new owner, got %q", got.UserID)
	}
}
