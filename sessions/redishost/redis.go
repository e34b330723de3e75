package redishost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/symstream/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const maxTouchAttempts = 5

// Config for a Redis-backed Host. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: SYMSTREAM_REDIS_ADDR
	RedisAddr string `env:"SYMSTREAM_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SYMSTREAM_KEY_PREFIX
	KeyPrefix string `env:"SYMSTREAM_KEY_PREFIX,default=symstream:"`
}

type Host struct {
	client    redis.UniversalClient
	keyPrefix string
	owned     bool
	now       func() time.Time
}

var _ sessions.Host = (*Host)(nil)

// Option configures a Host.
type Option func(*Host)

// WithClock overrides the time source used for access stamps.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		if now != nil {
			h.now = now
		}
	}
}

func New(cfg Config, opts ...Option) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	h := NewWithClient(cl, cfg.KeyPrefix, opts...)
	h.owned = true
	return h, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv(opts ...Option) (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis session host config: %w", err)
	}
	return New(cfg, opts...)
}

// NewWithClient wraps an existing client. The caller keeps ownership of the
// client.
func NewWithClient(client redis.UniversalClient, keyPrefix string, opts ...Option) *Host {
	if keyPrefix == "" {
		keyPrefix = "symstream:"
	}
	h := &Host{client: client, keyPrefix: keyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close closes the Redis client if the Host created it.
func (h *Host) Close() error {
	if !h.owned {
		return nil
	}
	return h.client.Close()
}

func (h *Host) sessionKey(sessionID string) string { return h.keyPrefix + "session:" + sessionID }

func (h *Host) CreateSession(ctx context.Context, meta *sessions.SessionMetadata) error {
	now := h.now()
	stored := meta.Clone()
	if stored.MetaVersion == 0 {
		stored.MetaVersion = 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.LastAccess = now

	b, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	ok, err := h.client.SetNX(ctx, h.sessionKey(stored.SessionID), b, stored.TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", stored.SessionID, err)
	}
	if !ok {
		return sessions.ErrSessionExists
	}
	return nil
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.SessionMetadata, error) {
	meta, err := h.load(ctx, h.client, sessionID)
	if err != nil {
		return nil, err
	}
	if meta.Expired(h.now()) {
		return nil, sessions.ErrSessionNotFound
	}
	return meta, nil
}

func (h *Host) TouchSession(ctx context.Context, sessionID string) error {
	key := h.sessionKey(sessionID)
	for attempt := 0; attempt < maxTouchAttempts; attempt++ {
		err := h.client.Watch(ctx, func(tx *redis.Tx) error {
			meta, err := h.load(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			now := h.now()
			if meta.Expired(now) {
				return sessions.ErrSessionNotFound
			}
			meta.LastAccess = now
			b, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("marshal session metadata: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, b, meta.TTL)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("touch session %s: too much contention", sessionID)
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	n, err := h.client.Del(ctx, h.sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if n == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (h *Host) load(ctx context.Context, c redis.Cmdable, sessionID string) (*sessions.SessionMetadata, error) {
	b, err := c.Get(ctx, h.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	var meta sessions.SessionMetadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &meta, nil
}
