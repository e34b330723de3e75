package redisbroker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/symstream/broker"
	"github.com/ggoodman/symstream/broker/brokertest"
	"github.com/redis/go-redis/v9"
)

func newTestBroker(t *testing.T, opts ...Option) (*Broker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cl := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cl.Close() })
	opts = append([]Option{WithBlockTimeout(50 * time.Millisecond)}, opts...)
	return New(cl, "test:", opts...), mr
}

func TestRedisBroker(t *testing.T) {
	brokertest.RunBrokerTests(t, func(t *testing.T) broker.Broker {
		b, _ := newTestBroker(t)
		return b
	})
}

func TestStreamIsCappedAndExpires(t *testing.T) {
	b, mr := newTestBroker(t, WithMaxLen(3))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := b.Publish(ctx, "revoked", []byte("x")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	n, err := b.client.XLen(ctx, "test:stream:revoked").Result()
	if err != nil {
		t.Fatalf("XLen: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected stream capped at 3 entries, have %d", n)
	}
	if ttl := mr.TTL("test:stream:revoked"); ttl != defaultTTL {
		t.Fatalf("expected ttl %s, got %s", defaultTTL, ttl)
	}

	mr.FastForward(defaultTTL + time.Second)
	if mr.Exists("test:stream:revoked") {
		t.Fatalf("expected idle stream to expire")
	}
}

func TestSharedAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *Broker {
		cl := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = cl.Close() })
		return New(cl, "test:", WithBlockTimeout(50*time.Millisecond))
	}
	a, b := newClient(), newClient()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := a.Subscribe(ctx, "revoked")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()

	if _, err := b.Publish(ctx, "revoked", []byte("sess-1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	env, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(env.Data) != "sess-1" {
		t.Fatalf("got %q", env.Data)
	}
}
