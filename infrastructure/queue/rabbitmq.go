package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"compliance/config"
	"compliance/observability"
	"compliance/observability/types"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the subset of *amqp091.Channel used for publishing.
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes persistent JSON messages to durable queues
// through the default exchange.
type RabbitMQPublisher struct {
	conn    *amqp091.Connection
	channel AMQPChannel
	timeout time.Duration
	logger  types.Logger
	metrics types.Metrics

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQPublisher dials the broker and opens a channel.
func NewRabbitMQPublisher(cfg config.RabbitMQConfig, provider observability.Provider) (*RabbitMQPublisher, error) {
	logger := provider.Logger("queue.rabbitmq")

	conn, err := amqp091.DialConfig(cfg.URL, amqp091.Config{
		Dial: amqp091.DefaultDial(cfg.Timeout),
	})
	if err != nil {
		logger.Error(context.Background(), "Failed to connect to RabbitMQ", err, nil)
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error(context.Background(), "Failed to create channel", err, nil)
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	p := NewRabbitMQPublisherWithChannel(channel, cfg.Timeout, provider)
	p.conn = conn
	return p, nil
}

// NewRabbitMQPublisherWithChannel wraps an open channel.
func NewRabbitMQPublisherWithChannel(channel AMQPChannel, timeout time.Duration, provider observability.Provider) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		channel:  channel,
		timeout:  timeout,
		logger:   provider.Logger("queue.rabbitmq"),
		metrics:  provider.Metrics("queue.rabbitmq"),
		declared: make(map[string]bool),
	}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, message *Message) error {
	start := time.Now()
	defer func() {
		p.metrics.RecordDuration("publish", time.Since(start).Seconds())
	}()

	body, err := json.Marshal(message.Body)
	if err != nil {
		p.metrics.RecordError("publish", "marshal_failed")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.declare(message.Target); err != nil {
		p.metrics.RecordError("publish", "declare_failed")
		p.logger.Error(ctx, "Failed to declare queue", err, types.Fields{"queue": message.Target})
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	headers := amqp091.Table{}
	for k, v := range message.Attributes {
		headers[k] = v
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err = p.channel.PublishWithContext(ctx, "", message.Target, false, false, amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		ContentType:  "application/json",
		Type:         message.Type,
		Headers:      headers,
		Body:         body,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		p.metrics.RecordError("publish", "publish_failed")
		p.logger.Error(ctx, "Failed to publish message", err, types.Fields{"target": message.Target})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.metrics.RecordSuccess("publish")
	p.metrics.RecordPayloadSize("message", int64(len(body)))
	p.logger.Debug(ctx, "Message published", types.Fields{
		"target": message.Target,
		"type":   message.Type,
		"size":   len(body),
	})

	return nil
}

// declare is idempotent on the broker; the cache only saves round trips.
func (p *RabbitMQPublisher) declare(queueName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.declared[queueName] {
		return nil
	}

	if _, err := p.channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return err
	}

	p.declared[queueName] = true
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
