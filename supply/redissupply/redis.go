package redissupply

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/ggoodman/symstream/supply"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for a Redis-backed Store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: SYMSTREAM_REDIS_ADDR
	RedisAddr string `env:"SYMSTREAM_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SYMSTREAM_KEY_PREFIX
	KeyPrefix string `env:"SYMSTREAM_KEY_PREFIX,default=symstream:"`
}

type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	owned     bool
}

func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := NewWithClient(cl, cfg.KeyPrefix)
	s.owned = true
	return s, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis supply config: %w", err)
	}
	return New(cfg)
}

// NewWithClient wraps an existing client. The caller keeps ownership of the
// client; Close on the returned Store does not close it.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "symstream:"
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

// Close closes the Redis client if the Store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) supplyKey(key string) string { return s.keyPrefix + "supply:" + key }

func (s *Store) holdersKey(key string) string { return s.supplyKey(key) + ":holders" }

func (s *Store) Create(ctx context.Context, key string, initial uint64) (supply.Counter, error) {
	if initial > math.MaxInt64 {
		return nil, fmt.Errorf("initial supply %d exceeds redis integer range", initial)
	}
	rk := s.supplyKey(key)
	if err := s.client.SetNX(ctx, rk, strconv.FormatUint(initial, 10), 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", rk, err)
	}
	return &counter{client: s.client, key: rk}, nil
}

func (s *Store) Lookup(ctx context.Context, key string) (supply.Counter, error) {
	rk := s.supplyKey(key)
	n, err := s.client.Exists(ctx, rk).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up counter %s: %w", rk, err)
	}
	if n == 0 {
		return nil, supply.ErrCounterNotFound
	}
	return &counter{client: s.client, key: rk}, nil
}

func (s *Store) Destroy(ctx context.Context, key string) error {
	rk := s.supplyKey(key)
	if err := s.client.Del(ctx, rk, s.holdersKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to destroy counter %s: %w", rk, err)
	}
	return nil
}

// acquireScript creates the counter if absent and returns the new holder
// count.
var acquireScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'NX')
return redis.call('INCR', KEYS[2])
`)

// releaseScript returns 1 when the last holder left and both keys were
// deleted, 0 otherwise.
var releaseScript = redis.NewScript(`
local n = redis.call('DECR', KEYS[2])
if n > 0 then
  return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
return 1
`)

func (s *Store) Acquire(ctx context.Context, key string, initial uint64) (supply.Counter, error) {
	if initial > math.MaxInt64 {
		return nil, fmt.Errorf("initial supply %d exceeds redis integer range", initial)
	}
	rk := s.supplyKey(key)
	if err := acquireScript.Run(ctx, s.client, []string{rk, s.holdersKey(key)}, strconv.FormatUint(initial, 10)).Err(); err != nil {
		return nil, fmt.Errorf("failed to acquire counter %s: %w", rk, err)
	}
	return &counter{client: s.client, key: rk}, nil
}

func (s *Store) Release(ctx context.Context, key string) (bool, error) {
	rk := s.supplyKey(key)
	res, err := releaseScript.Run(ctx, s.client, []string{rk, s.holdersKey(key)}).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to release counter %s: %w", rk, err)
	}
	return res == 1, nil
}

type counter struct {
	client redis.UniversalClient
	key    string
}

func (c *counter) Load(ctx context.Context) (uint64, error) {
	n, err := c.client.Get(ctx, c.key).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, supply.ErrCounterNotFound
		}
		return 0, fmt.Errorf("failed to load counter %s: %w", c.key, err)
	}
	return n, nil
}

// decrementScript returns the new count, -1 when the decrement would go below
// zero and -2 when the key is missing.
var decrementScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return -2
end
local n = tonumber(ARGV[1])
if tonumber(v) < n then
  return -1
end
return redis.call('DECRBY', KEYS[1], n)
`)

func (c *counter) DecrementBy(ctx context.Context, n uint64) error {
	if n == 0 {
		return nil
	}
	if n > math.MaxInt64 {
		return supply.ErrUnderflow
	}
	res, err := decrementScript.Run(ctx, c.client, []string{c.key}, strconv.FormatUint(n, 10)).Int64()
	if err != nil {
		return fmt.Errorf("failed to decrement counter %s: %w", c.key, err)
	}
	switch res {
	case -1:
		return supply.ErrUnderflow
	case -2:
		return supply.ErrCounterNotFound
	}
	return nil
}

// Interface compliance
var _ supply.Store = (*Store)(nil)
