package handler

import (
	"context"
	"time"

	"compliance/config"
	"compliance/observability"
	"compliance/observability/types"
)

// Handler wraps a Worker with a middleware chain. Platform adapters call
// Handle; the worker only ever sees the innermost call.
type Handler struct {
	worker      Worker
	obs         observability.Provider
	middlewares []Middleware
	config      *config.HandlerConfig
}

// Middleware wraps a HandlerFunc to add a cross-cutting concern.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is the function signature for handling requests.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

// NewHandler creates a handler without middleware. Most callers should use
// Factory, which installs the default chain.
func NewHandler(worker Worker, provider observability.Provider, cfg *config.HandlerConfig) *Handler {
	return &Handler{
		worker:      worker,
		obs:         provider,
		config:      cfg,
		middlewares: []Middleware{},
	}
}

// Use appends middleware. The first middleware added is the outermost.
func (h *Handler) Use(middleware Middleware) {
	h.middlewares = append(h.middlewares, middleware)
}

// Handle runs the request through the middleware chain and the worker.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	chain := h.buildHandlerChain()

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	ctx = context.WithValue(ctx, types.RequestIDKey, req.ID)
	ctx = context.WithValue(ctx, types.WorkerKey, h.worker.Name())
	ctx = context.WithValue(ctx, types.PlatformKey, h.config.Platform)

	return chain(ctx, req)
}

// LogShutdown records uptime and shutdown markers. It does not exit the
// process; the caller owns the lifecycle.
func LogShutdown(ctx context.Context, logger observability.Logger, metrics observability.Metrics, startTime time.Time) {
	uptime := time.Since(startTime).Seconds()

	metrics.RecordSuccess("shutdown_initiated")
	logger.Info(ctx, "Shutting down gracefully", observability.Fields{
		"uptime_seconds": uptime,
	})

	metrics.RecordDuration("service_uptime", uptime)
	metrics.RecordSuccess("shutdown_complete")
	logger.Info(ctx, "Shutdown complete", nil)
}

func (h *Handler) buildHandlerChain() HandlerFunc {
	chain := h.workerHandler
	for i := len(h.middlewares) - 1; i >= 0; i-- {
		chain = h.middlewares[i](chain)
	}
	return chain
}

func (h *Handler) workerHandler(ctx context.Context, req Request) (Response, error) {
	return h.worker.Process(ctx, req)
}

// Health checks the health of the worker.
func (h *Handler) Health(ctx context.Context) error {
	return h.worker.Health(ctx)
}

// Config returns the handler configuration.
func (h *Handler) Config() *config.HandlerConfig {
	return h.config
}

// Worker returns the underlying worker.
func (h *Handler) Worker() Worker {
	return h.worker
}
