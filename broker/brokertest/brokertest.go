// Package brokertest is a conformance suite for broker.Broker
// implementations.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ggoodman/symstream/broker"
)

// BrokerFactory returns a fresh, empty broker for each subtest.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the suite against brokers produced by factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishThenNext", func(t *testing.T) { testPublishThenNext(t, factory(t)) })
	t.Run("OnlyNewMessages", func(t *testing.T) { testOnlyNewMessages(t, factory(t)) })
	t.Run("PreservesOrder", func(t *testing.T) { testPreservesOrder(t, factory(t)) })
	t.Run("FanOut", func(t *testing.T) { testFanOut(t, factory(t)) })
	t.Run("TopicIsolation", func(t *testing.T) { testTopicIsolation(t, factory(t)) })
	t.Run("NextHonorsContext", func(t *testing.T) { testNextHonorsContext(t, factory(t)) })
	t.Run("CloseEndsStream", func(t *testing.T) { testCloseEndsStream(t, factory(t)) })
}

func timeoutCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustSubscribe(t *testing.T, ctx context.Context, b broker.Broker, topic string) broker.Stream {
	t.Helper()
	s, err := b.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("Subscribe(%q): %v", topic, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustPublish(t *testing.T, ctx context.Context, b broker.Broker, topic, data string) string {
	t.Helper()
	id, err := b.Publish(ctx, topic, []byte(data))
	if err != nil {
		t.Fatalf("Publish(%q): %v", topic, err)
	}
	if id == "" {
		t.Fatalf("Publish(%q) returned empty event id", topic)
	}
	return id
}

func mustNext(t *testing.T, ctx context.Context, s broker.Stream) broker.Envelope {
	t.Helper()
	env, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return env
}

func testPublishThenNext(t *testing.T, b broker.Broker) {
	ctx := timeoutCtx(t)
	s := mustSubscribe(t, ctx, b, "revoked")
	id := mustPublish(t, ctx, b, "revoked", "sess-1")

	env := mustNext(t, ctx, s)
	if env.ID != id || string(env.Data) != "sess-1" {
		t.Fatalf("got %s/%q, want %s/%q", env.ID, env.Data, id, "sess-1")
	}
}

func testOnlyNewMessages(t *testing.T, b broker.Broker) {
	ctx := timeoutCtx(t)
	mustPublish(t, ctx, b, "revoked", "before")
	s := mustSubscribe(t, ctx, b, "revoked")
	mustPublish(t, ctx, b, "revoked", "after")

	if env := mustNext(t, ctx, s); string(env.Data) != "after" {
		t.Fatalf("expected first message after subscribe, got %q", env.Data)
	}
}

func testPreservesOrder(t *testing.T, b broker.Broker) {
	ctx := timeoutCtx(t)
	s := mustSubscribe(t, ctx, b, "revoked")
	for i := 0; i < 10; i++ {
		mustPublish(t, ctx, b, "revoked", fmt.Sprintf("m%d", i))
	}
	for i := 0; i < 10; i++ {
		if env := mustNext(t, ctx, s); string(env.Data) != fmt.Sprintf("m%d", i) {
			t.Fatalf("message %d = %q", i, env.Data)
		}
	}
}

func testFanOut(t *testing.T, b broker.Broker) {
	ctx := timeoutCtx(t)
	s1 := mustSubscribe(t, ctx, b, "revoked")
	s2 := mustSubscribe(t, ctx, b, "revoked")
	mustPublish(t, ctx, b, "revoked", "both")

	for i, s := range []broker.Stream{s1, s2} {
		if env := mustNext(t, ctx, s); string(env.Data) != "both" {
			t.Fatalf("subscriber %d got %q", i, env.Data)
		}
	}
}

func testTopicIsolation(t *testing.T, b broker.Broker) {
	ctx := timeoutCtx(t)
	foxes := mustSubscribe(t, ctx, b, "foxes")
	mustPublish(t, ctx, b, "wolves", "howl")
	mustPublish(t, ctx, b, "foxes", "yip")

	if env := mustNext(t, ctx, foxes); string(env.Data) != "yip" {
		t.Fatalf("foxes subscriber got %q", env.Data)
	}
}

func testNextHonorsContext(t *testing.T, b broker.Broker) {
	ctx := timeoutCtx(t)
	s := mustSubscribe(t, ctx, b, "quiet")

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err := s.Next(short)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func testCloseEndsStream(t *testing.T, b broker.Broker) {
	ctx := timeoutCtx(t)
	s := mustSubscribe(t, ctx, b, "revoked")

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, broker.ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("Next did not return after Close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
