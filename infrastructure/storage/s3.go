package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"compliance/config"
	"compliance/observability"
	"compliance/observability/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of the S3 client used by S3Archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes objects into a single bucket.
type S3Archive struct {
	client  ObjectPutter
	bucket  string
	logger  types.Logger
	metrics types.Metrics
}

// NewS3Archive builds an S3 client from cfg. Static credentials are used
// when both keys are set; otherwise the default AWS chain applies.
func NewS3Archive(ctx context.Context, cfg config.StorageConfig, provider observability.Provider) (*S3Archive, error) {
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3ArchiveWithClient(client, cfg.Bucket, provider), nil
}

// NewS3ArchiveWithClient wraps an existing client.
func NewS3ArchiveWithClient(client ObjectPutter, bucket string, provider observability.Provider) *S3Archive {
	return &S3Archive{
		client:  client,
		bucket:  bucket,
		logger:  provider.Logger("storage.s3"),
		metrics: provider.Metrics("storage.s3"),
	}
}

func (a *S3Archive) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		a.metrics.RecordDuration("put", time.Since(start).Seconds())
	}()

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.metrics.RecordError("put", "put_failed")
		a.logger.Error(ctx, "failed to put object", err, types.Fields{
			"bucket": a.bucket,
			"key":    key,
		})
		return fmt.Errorf("failed to put object: %w", err)
	}

	a.metrics.RecordSuccess("put")
	a.metrics.RecordPayloadSize("object", int64(len(data)))
	a.logger.Debug(ctx, "object stored successfully", types.Fields{
		"bucket": a.bucket,
		"key":    key,
		"size":   len(data),
	})

	return nil
}

func buildAWSConfig(ctx context.Context, cfg config.StorageConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.S3.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.S3.Region))
	}

	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.S3.AccessKeyID,
				cfg.S3.SecretAccessKey,
				"",
			),
		))
	}

	if cfg.Timeout > 0 {
		optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
		}))
	}

	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}
