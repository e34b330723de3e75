package memorybroker

import (
	"context"
	"testing"

	"github.com/ggoodman/symstream/broker"
	"github.com/ggoodman/symstream/broker/brokertest"
)

func TestMemoryBroker(t *testing.T) {
	brokertest.RunBrokerTests(t, func(t *testing.T) broker.Broker { return New() })
}

func TestSlowSubscriberMissesOverflow(t *testing.T) {
	b := New()
	ctx := context.Background()
	s, err := b.Subscribe(ctx, "t")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()

	for i := 0; i < subscriberBuffer+10; i++ {
		if _, err := b.Publish(ctx, "t", []byte("x")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for i := 0; i < subscriberBuffer; i++ {
		if _, err := s.Next(ctx); err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
	}

	if _, err := b.Publish(ctx, "t", []byte("late")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	env, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(env.Data) != "late" {
		t.Fatalf("expected overflow to be dropped, got %q", env.Data)
	}
}

func TestCloseForgetsTopic(t *testing.T) {
	b := New()
	s, _ := b.Subscribe(context.Background(), "t")
	_ = s.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.topics) != 0 {
		t.Fatalf("expected no topics after last subscriber closed, have %d", len(b.topics))
	}
}
