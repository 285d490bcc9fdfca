package queue

import (
	"context"
	"fmt"

	"compliance/config"
	"compliance/observability"
	"compliance/observability/types"
)

// New creates the publisher selected by cfg.Provider.
func New(ctx context.Context, cfg config.QueueConfig, provider observability.Provider) (Publisher, error) {
	logger := provider.Logger("queue.factory")

	switch cfg.Provider {
	case "", "none":
		logger.Info(ctx, "Queue publishing disabled", nil)
		return NopPublisher{}, nil

	case "rabbitmq":
		logger.Info(ctx, "Creating RabbitMQ publisher", types.Fields{"target": cfg.Target})
		return NewRabbitMQPublisher(cfg.RabbitMQ, provider)

	case "sqs":
		logger.Info(ctx, "Creating SQS publisher", types.Fields{
			"region": cfg.SQS.Region,
			"target": cfg.Target,
		})
		return NewSQSPublisher(ctx, cfg.SQS, provider)

	default:
		return nil, fmt.Errorf("unsupported queue provider: %s", cfg.Provider)
	}
}
