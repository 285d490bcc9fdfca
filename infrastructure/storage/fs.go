package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"compliance/observability"
	"compliance/observability/types"
)

// FSArchive writes objects below a base directory. Objects are written to
// a temporary file and renamed so readers never see partial content.
type FSArchive struct {
	baseDir string
	logger  types.Logger
	metrics types.Metrics
}

func NewFSArchive(baseDir string, provider observability.Provider) *FSArchive {
	return &FSArchive{
		baseDir: baseDir,
		logger:  provider.Logger("storage.fs"),
		metrics: provider.Metrics("storage.fs"),
	}
}

func (a *FSArchive) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(a.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		a.metrics.RecordError("put", "mkdir_failed")
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		a.metrics.RecordError("put", "create_failed")
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		a.metrics.RecordError("put", "write_failed")
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		a.metrics.RecordError("put", "write_failed")
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		a.metrics.RecordError("put", "rename_failed")
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	a.metrics.RecordSuccess("put")
	a.logger.Debug(ctx, "object stored successfully", types.Fields{
		"path": path,
		"size": len(data),
	})
	return nil
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
