// Package memorybroker is an in-process broker.Broker for single-node
// deployments and tests.
package memorybroker

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/symstream/broker"
)

const subscriberBuffer = 128

var (
	_ broker.Broker = (*Broker)(nil)
	_ broker.Stream = (*stream)(nil)
)

// Broker delivers to subscribers through buffered channels. A subscriber
// whose buffer is full misses the message.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[*stream]struct{}
	seq    atomic.Int64
}

func New() *Broker {
	return &Broker{topics: make(map[string]map[*stream]struct{})}
}

func (b *Broker) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	env := broker.Envelope{
		ID:   strconv.FormatInt(b.seq.Add(1), 10),
		Data: append([]byte(nil), data...),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.topics[topic] {
		select {
		case s.ch <- env:
		default:
		}
	}
	return env.ID, nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string) (broker.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &stream{
		b:     b,
		topic: topic,
		ch:    make(chan broker.Envelope, subscriberBuffer),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*stream]struct{})
		b.topics[topic] = subs
	}
	subs[s] = struct{}{}
	return s, nil
}

func (b *Broker) unsubscribe(s *stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[s.topic]
	delete(subs, s)
	if len(subs) == 0 {
		delete(b.topics, s.topic)
	}
}

type stream struct {
	b     *Broker
	topic string
	ch    chan broker.Envelope
	done  chan struct{}
	once  sync.Once
}

func (s *stream) Next(ctx context.Context) (broker.Envelope, error) {
	select {
	case <-s.done:
		return broker.Envelope{}, broker.ErrClosed
	default:
	}
	select {
	case env := <-s.ch:
		return env, nil
	case <-s.done:
		return broker.Envelope{}, broker.ErrClosed
	case <-ctx.Done():
		return broker.Envelope{}, ctx.Err()
	}
}

func (s *stream) Close() error {
	s.once.Do(func() {
		s.b.unsubscribe(s)
		close(s.done)
	})
	return nil
}
