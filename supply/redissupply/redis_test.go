package redissupply

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/symstream/supply"
	"github.com/ggoodman/symstream/supply/supplytest"
	"github.com/redis/go-redis/v9"
)

func TestRedisStore(t *testing.T) {
	supplytest.RunStoreTests(t, func(t *testing.T) supply.Store {
		mr := miniredis.RunT(t)
		cl := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = cl.Close() })
		return NewWithClient(cl, "test:")
	})
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(Config{RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mr.Close()
	if _, err := New(Config{RedisAddr: mr.Addr()}); err == nil {
		t.Fatalf("expected ping failure against stopped server")
	}
}
