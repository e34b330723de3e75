package memoryhost

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/symstream/sessions"
)

const purgeInterval = time.Minute

// Host is an in-memory implementation of sessions.Host.
type Host struct {
	mu        sync.RWMutex
	sessions  map[string]*sessions.SessionMetadata
	lastPurge time.Time

	now func() time.Time
}

var _ sessions.Host = (*Host)(nil)

// Option configures a Host.
type Option func(*Host)

// WithClock overrides the time source used for access stamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		if now != nil {
			h.now = now
		}
	}
}

func New(opts ...Option) *Host {
	h := &Host{
		sessions: make(map[string]*sessions.SessionMetadata),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) CreateSession(ctx context.Context, meta *sessions.SessionMetadata) error {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	if now.Sub(h.lastPurge) > purgeInterval {
		h.purgeLocked(now)
	}

	if existing, ok := h.sessions[meta.SessionID]; ok && !existing.Expired(now) {
		return sessions.ErrSessionExists
	}

	stored := meta.Clone()
	if stored.MetaVersion == 0 {
		stored.MetaVersion = 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.LastAccess = now
	h.sessions[stored.SessionID] = stored
	return nil
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.SessionMetadata, error) {
	now := h.now()

	h.mu.RLock()
	meta, ok := h.sessions[sessionID]
	var expired bool
	var out *sessions.SessionMetadata
	if ok {
		expired = meta.Expired(now)
		out = meta.Clone()
	}
	h.mu.RUnlock()

	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	if expired {
		h.mu.Lock()
		if cur, ok := h.sessions[sessionID]; ok && cur.Expired(now) {
			delete(h.sessions, sessionID)
		}
		h.mu.Unlock()
		return nil, sessions.ErrSessionNotFound
	}
	return out, nil
}

func (h *Host) TouchSession(ctx context.Context, sessionID string) error {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	meta, ok := h.sessions[sessionID]
	if !ok {
		return sessions.ErrSessionNotFound
	}
	if meta.Expired(now) {
		delete(h.sessions, sessionID)
		return sessions.ErrSessionNotFound
	}
	meta.LastAccess = now
	return nil
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	meta, ok := h.sessions[sessionID]
	if !ok {
		return sessions.ErrSessionNotFound
	}
	delete(h.sessions, sessionID)
	if meta.Expired(now) {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (h *Host) purgeLocked(now time.Time) {
	for id, meta := range h.sessions {
		if meta.Expired(now) {
			delete(h.sessions, id)
		}
	}
	h.lastPurge = now
}
