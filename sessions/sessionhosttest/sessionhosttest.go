// Package sessionhosttest holds the conformance suite every sessions.Host
// implementation is expected to pass.
package sessionhosttest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ggoodman/symstream/sessions"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Harness bundles a Host under test with a hook that moves the host's notion
// of time forward.
type Harness struct {
	Host    sessions.Host
	Advance func(d time.Duration)
}

// HostFactory creates a new Harness for testing.
type HostFactory func(t *testing.T) Harness

// RunSessionHostTests runs the complete Host test suite against the provided factory.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	t.Run("Create_ThenGet", func(t *testing.T) { testCreateThenGet(t, factory) })
	t.Run("Create_Duplicate", func(t *testing.T) { testCreateDuplicate(t, factory) })
	t.Run("Get_Missing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("Get_ReturnsCopy", func(t *testing.T) { testGetReturnsCopy(t, factory) })
	t.Run("Delete_RemovesSession", func(t *testing.T) { testDeleteRemovesSession(t, factory) })
	t.Run("Delete_Missing", func(t *testing.T) { testDeleteMissing(t, factory) })
	t.Run("TTL_ExpiresIdleSession", func(t *testing.T) { testTTLExpiresIdleSession(t, factory) })
	t.Run("TTL_TouchSlidesWindow", func(t *testing.T) { testTTLTouchSlidesWindow(t, factory) })
	t.Run("TTL_ZeroNeverExpires", func(t *testing.T) { testTTLZeroNeverExpires(t, factory) })
	t.Run("Touch_Missing", func(t *testing.T) { testTouchMissing(t, factory) })
	t.Run("Concurrent_CreateAndTouch", func(t *testing.T) { testConcurrentCreateAndTouch(t, factory) })
}

func newMeta(ttl time.Duration) *sessions.SessionMetadata {
	return &sessions.SessionMetadata{
		SessionID: uuid.NewString(),
		UserID:    "user-1",
		Device:    "foxes",
		Mode:      "session",
		TTL:       ttl,
	}
}

func testCreateThenGet(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	meta := newMeta(time.Hour)
	if err := h.Host.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := h.Host.GetSession(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.SessionID != meta.SessionID || got.UserID != "user-1" || got.Device != "foxes" || got.Mode != "session" {
		t.Fatalf("unexpected metadata: %+v", got)
	}
	if got.MetaVersion != 1 {
		t.Fatalf("expected meta version 1, got %d", got.MetaVersion)
	}
	if got.TTL != time.Hour {
		t.Fatalf("expected ttl 1h, got %s", got.TTL)
	}
	if got.CreatedAt.IsZero() || got.LastAccess.IsZero() {
		t.Fatalf("expected timestamps to be stamped: %+v", got)
	}
}

func testCreateDuplicate(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	meta := newMeta(time.Hour)
	if err := h.Host.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	dup := *meta
	dup.UserID = "someone-else"
	if err := h.Host.CreateSession(ctx, &dup); !errors.Is(err, sessions.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}

	got, err := h.Host.GetSession(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("duplicate create overwrote owner: %q", got.UserID)
	}
}

func testGetMissing(t *testing.T, factory HostFactory) {
	h := factory(t)
	if _, err := h.Host.GetSession(context.Background(), uuid.NewString()); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testGetReturnsCopy(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	meta := newMeta(time.Hour)
	if err := h.Host.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	meta.UserID = "mutated-after-create"

	got, err := h.Host.GetSession(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	got.UserID = "mutated-after-get"

	again, err := h.Host.GetSession(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if again.UserID != "user-1" {
		t.Fatalf("stored metadata aliased a caller copy: %q", again.UserID)
	}
}

func testDeleteRemovesSession(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	meta := newMeta(time.Hour)
	if err := h.Host.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := h.Host.DeleteSession(ctx, meta.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := h.Host.GetSession(ctx, meta.SessionID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := h.Host.TouchSession(ctx, meta.SessionID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound touching deleted session, got %v", err)
	}
}

func testDeleteMissing(t *testing.T, factory HostFactory) {
	h := factory(t)
	if err := h.Host.DeleteSession(context.Background(), uuid.NewString()); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testTTLExpiresIdleSession(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	meta := newMeta(time.Minute)
	if err := h.Host.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	h.Advance(30 * time.Second)
	if _, err := h.Host.GetSession(ctx, meta.SessionID); err != nil {
		t.Fatalf("session expired early: %v", err)
	}

	h.Advance(31 * time.Second)
	if _, err := h.Host.GetSession(ctx, meta.SessionID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected idle session to expire, got %v", err)
	}
}

func testTTLTouchSlidesWindow(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	meta := newMeta(time.Minute)
	if err := h.Host.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	created, err := h.Host.GetSession(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	for i := 0; i < 4; i++ {
		h.Advance(40 * time.Second)
		if err := h.Host.TouchSession(ctx, meta.SessionID); err != nil {
			t.Fatalf("touch %d: %v", i, err)
		}
	}

	got, err := h.Host.GetSession(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("session expired despite touches: %v", err)
	}
	if !got.LastAccess.After(created.LastAccess) {
		t.Fatalf("expected last access to move forward: %s -> %s", created.LastAccess, got.LastAccess)
	}

	h.Advance(61 * time.Second)
	if err := h.Host.TouchSession(ctx, meta.SessionID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected expired session to reject touch, got %v", err)
	}
}

func testTTLZeroNeverExpires(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	meta := newMeta(0)
	if err := h.Host.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	h.Advance(24 * time.Hour)
	if _, err := h.Host.GetSession(ctx, meta.SessionID); err != nil {
		t.Fatalf("session without ttl expired: %v", err)
	}
}

func testTouchMissing(t *testing.T, factory HostFactory) {
	h := factory(t)
	if err := h.Host.TouchSession(context.Background(), uuid.NewString()); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testConcurrentCreateAndTouch(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const workers = 8
	const touches = 10

	ids := make([]string, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range ids {
		i := i
		g.Go(func() error {
			meta := newMeta(time.Hour)
			ids[i] = meta.SessionID
			if err := h.Host.CreateSession(gctx, meta); err != nil {
				return fmt.Errorf("create %d: %w", i, err)
			}
			for j := 0; j < touches; j++ {
				if err := h.Host.TouchSession(gctx, meta.SessionID); err != nil {
					return fmt.Errorf("touch %d/%d: %w", i, j, err)
				}
				if _, err := h.Host.GetSession(gctx, meta.SessionID); err != nil {
					return fmt.Errorf("get %d/%d: %w", i, j, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent workers: %v", err)
	}

	for _, id := range ids {
		if err := h.Host.DeleteSession(ctx, id); err != nil {
			t.Fatalf("DeleteSession(%s): %v", id, err)
		}
	}
}
