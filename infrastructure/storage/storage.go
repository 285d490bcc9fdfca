// Package storage archives check reports as JSON objects.
package storage

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned for empty keys or keys escaping the archive root.
var ErrInvalidKey = errors.New("invalid object key")

// Archive stores immutable objects under a slash separated key.
type Archive interface {
	Put(ctx context.Context, key string, data []byte) error
}

// NopArchive discards every object.
type NopArchive struct{}

func (NopArchive) Put(ctx context.Context, key string, data []byte) error {
	return nil
}
