package sessions

import "time"

// SessionMetadata is the persisted representation of a stream session.
//
// TTL is a sliding window: the host expires a session once
// LastAccess + TTL < now. A zero TTL never expires.
type SessionMetadata struct {
	MetaVersion int    `json:"meta_version"` // starts at 1
	SessionID   string `json:"session_id"`   // immutable
	UserID      string `json:"user_id"`      // immutable
	Device      string `json:"device"`       // immutable
	Mode        string `json:"mode"`         // immutable

	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	LastAccess time.Time     `json:"last_access"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the session's idle window has elapsed at now.
func (m *SessionMetadata) Expired(now time.Time) bool {
	return m.TTL > 0 && m.LastAccess.Add(m.TTL).Before(now)
}

// Clone returns a copy safe to hand to callers.
func (m *SessionMetadata) Clone() *SessionMetadata {
	c := *m
	return &c
}
