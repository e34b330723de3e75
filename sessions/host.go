package sessions

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound is returned for unknown, deleted or expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by CreateSession for a duplicate id.
	ErrSessionExists = errors.New("session already exists")
)

// Host stores session metadata. Implementations must be safe for concurrent
// use and work across in-memory and distributed deployments.
type Host interface {
	// CreateSession persists meta. It fails with ErrSessionExists if the id
	// is already taken.
	CreateSession(ctx context.Context, meta *SessionMetadata) error
	// GetSession returns a copy of the stored metadata or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*SessionMetadata, error)
	// TouchSession records an access and extends the sliding TTL.
	TouchSession(ctx context.Context, sessionID string) error
	// DeleteSession removes the session. Deleting a missing session returns
	// ErrSessionNotFound.
	DeleteSession(ctx context.Context, sessionID string) error
}
