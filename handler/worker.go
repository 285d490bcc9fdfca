package handler

import (
	"context"
)

// Worker is the platform-agnostic business interface wrapped by Handler.
// Workers never see transport details; adapters build the Request.
type Worker interface {
	// Name returns the worker name used in logs, metrics and health output.
	Name() string

	// Process handles one request. Business failures are reported through
	// Response.Error; a non-nil error is reserved for infrastructure faults.
	Process(ctx context.Context, request Request) (Response, error)

	// Health verifies that the worker's dependencies are reachable.
	Health(ctx context.Context) error
}
