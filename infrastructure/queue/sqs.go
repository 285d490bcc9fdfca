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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used for publishing.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends JSON messages to SQS queues resolved by name.
type SQSPublisher struct {
	client  SQSAPI
	logger  types.Logger
	metrics types.Metrics

	mu        sync.Mutex
	queueURLs map[string]string
}

// NewSQSPublisher loads the default AWS configuration for cfg.Region.
// A non-empty cfg.Endpoint points the client at a local emulator.
func NewSQSPublisher(ctx context.Context, cfg config.SQSConfig, provider observability.Provider) (*SQSPublisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewSQSPublisherWithClient(client, provider), nil
}

// NewSQSPublisherWithClient wraps an existing client.
func NewSQSPublisherWithClient(client SQSAPI, provider observability.Provider) *SQSPublisher {
	return &SQSPublisher{
		client:    client,
		logger:    provider.Logger("queue.sqs"),
		metrics:   provider.Metrics("queue.sqs"),
		queueURLs: make(map[string]string),
	}
}

func (p *SQSPublisher) queueURL(ctx context.Context, queueName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if url, ok := p.queueURLs[queueName]; ok {
		return url, nil
	}

	result, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", queueName, err)
	}

	url := aws.ToString(result.QueueUrl)
	p.queueURLs[queueName] = url
	return url, nil
}

func (p *SQSPublisher) Publish(ctx context.Context, message *Message) error {
	start := time.Now()
	defer func() {
		p.metrics.RecordDuration("publish", time.Since(start).Seconds())
	}()

	queueURL, err := p.queueURL(ctx, message.Target)
	if err != nil {
		p.metrics.RecordError("publish", "queue_url_failed")
		p.logger.Error(ctx, "Failed to resolve queue URL", err, types.Fields{"queue": message.Target})
		return err
	}

	body, err := json.Marshal(message.Body)
	if err != nil {
		p.metrics.RecordError("publish", "marshal_failed")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	attributes := make(map[string]sqstypes.MessageAttributeValue, len(message.Attributes)+1)
	if message.Type != "" {
		attributes["type"] = stringAttribute(message.Type)
	}
	for k, v := range message.Attributes {
		attributes[k] = stringAttribute(v)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attributes,
	})
	if err != nil {
		p.metrics.RecordError("publish", "send_failed")
		p.logger.Error(ctx, "Failed to send message", err, types.Fields{"target": message.Target})
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.metrics.RecordSuccess("publish")
	p.metrics.RecordPayloadSize("message", int64(len(body)))
	return nil
}

func (p *SQSPublisher) Close() error {
	return nil
}

func stringAttribute(value string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(value),
	}
}
