package storage

import (
	"context"
	"fmt"

	"compliance/config"
	"compliance/observability"
)

// New selects the archive backend named by cfg.Provider.
func New(ctx context.Context, cfg config.StorageConfig, provider observability.Provider) (Archive, error) {
	switch cfg.Provider {
	case "", "none":
		return NopArchive{}, nil
	case "fs":
		return NewFSArchive(cfg.Bucket, provider), nil
	case "s3":
		return NewS3Archive(ctx, cfg, provider)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
