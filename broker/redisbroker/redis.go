// Package redisbroker implements broker.Broker on Redis Streams so that
// every node sharing the Redis deployment sees every message.
package redisbroker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/symstream/broker"
	"github.com/redis/go-redis/v9"
)

const (
	defaultBlock  = time.Second
	defaultMaxLen = 1000
	defaultTTL    = 24 * time.Hour
	readBatch     = 16
)

var (
	_ broker.Broker = (*Broker)(nil)
	_ broker.Stream = (*stream)(nil)
)

// Broker appends to one stream key per topic with XADD and reads with a
// blocking XREAD. Streams are capped at MaxLen entries and expire after a day
// without publishes.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	block     time.Duration
	maxLen    int64
	ttl       time.Duration
}

// Option configures a Broker.
type Option func(*Broker)

// WithBlockTimeout bounds each XREAD so that Close and context
// cancellation are noticed promptly.
func WithBlockTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.block = d
		}
	}
}

// WithMaxLen caps the number of entries retained per topic.
func WithMaxLen(n int64) Option {
	return func(b *Broker) {
		if n > 0 {
			b.maxLen = n
		}
	}
}

// New wraps client. The caller keeps ownership of the client.
func New(client redis.UniversalClient, keyPrefix string, opts ...Option) *Broker {
	if keyPrefix == "" {
		keyPrefix = "symstream:"
	}
	b := &Broker{
		client:    client,
		keyPrefix: keyPrefix,
		block:     defaultBlock,
		maxLen:    defaultMaxLen,
		ttl:       defaultTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) streamKey(topic string) string {
	return b.keyPrefix + "stream:" + topic
}

func (b *Broker) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	key := b.streamKey(topic)
	var add *redis.StringCmd
	_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		add = p.XAdd(ctx, &redis.XAddArgs{
			Stream: key,
			MaxLen: b.maxLen,
			Values: map[string]any{"data": data},
		})
		p.Expire(ctx, key, b.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", key, err)
	}
	return add.Val(), nil
}

// Subscribe pins the read position to the newest entry currently in the
// stream, or the beginning when the stream does not exist yet.
func (b *Broker) Subscribe(ctx context.Context, topic string) (broker.Stream, error) {
	key := b.streamKey(topic)
	last := "0-0"
	msgs, err := b.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("subscribe to %s: %w", key, err)
	}
	if len(msgs) > 0 {
		last = msgs[0].ID
	}
	return &stream{b: b, key: key, last: last, done: make(chan struct{})}, nil
}

type stream struct {
	b       *Broker
	key     string
	last    string
	pending []redis.XMessage
	done    chan struct{}
	once    sync.Once
}

func (s *stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *stream) Next(ctx context.Context) (broker.Envelope, error) {
	for {
		if s.closed() {
			return broker.Envelope{}, broker.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return broker.Envelope{}, err
		}

		for len(s.pending) > 0 {
			msg := s.pending[0]
			s.pending = s.pending[1:]
			s.last = msg.ID
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			return broker.Envelope{ID: msg.ID, Data: []byte(data)}, nil
		}

		res, err := s.b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.key, s.last},
			Count:   readBatch,
			Block:   s.b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if s.closed() {
				return broker.Envelope{}, broker.ErrClosed
			}
			if ctx.Err() != nil {
				return broker.Envelope{}, ctx.Err()
			}
			return broker.Envelope{}, fmt.Errorf("read %s: %w", s.key, err)
		}
		for _, st := range res {
			s.pending = append(s.pending, st.Messages...)
		}
	}
}

func (s *stream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
