// Package broker distributes small notifications between the nodes of a
// deployment. The stream transport uses it to revoke cached sessions on every
// node as soon as one of them deletes the session.
package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned by Stream.Next once the stream has been closed.
var ErrClosed = errors.New("broker: stream closed")

// Broker fans short notifications out to every subscriber of a topic across
// all nodes sharing the backend. Delivery is at-most-once and starts at the
// first message published after Subscribe returns; consumers needing
// completeness must reconcile from their own source of truth.
type Broker interface {
	// Publish appends data to topic and returns the backend-assigned event ID.
	Publish(ctx context.Context, topic string, data []byte) (eventID string, err error)

	// Subscribe fixes the stream position at the current end of topic.
	Subscribe(ctx context.Context, topic string) (Stream, error)
}

// Stream delivers a topic's messages in publish order to a single consumer.
type Stream interface {
	// Next blocks until a message arrives, ctx is done or the stream is closed.
	Next(ctx context.Context) (Envelope, error)

	// Close releases the subscription. Pending Next calls return ErrClosed.
	Close() error
}

// Envelope is one published message.
type Envelope struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}
