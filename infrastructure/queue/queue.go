// Package queue publishes compliance events to a message broker.
package queue

import (
	"context"
)

// Message is a broker-neutral event. Body is encoded as JSON; Attributes
// travel as message headers (AMQP) or message attributes (SQS).
type Message struct {
	Target     string
	Type       string
	Body       interface{}
	Attributes map[string]string
}

// Publisher sends messages to a named target queue.
type Publisher interface {
	Publish(ctx context.Context, message *Message) error
	Close() error
}

// NopPublisher discards messages. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Message) error { return nil }

func (NopPublisher) Close() error { return nil }
