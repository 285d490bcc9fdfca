package handler

import (
	"compliance/config"
	"compliance/observability"
)

// Factory builds handlers with the default middleware stack.
type Factory struct {
	worker     Worker
	provider   observability.Provider
	handlerCfg config.HandlerConfig
	retryCfg   config.RetryConfig
}

// NewFactory creates a factory with default handler and retry settings.
func NewFactory(worker Worker, provider observability.Provider) *Factory {
	return &Factory{
		worker:     worker,
		provider:   provider,
		handlerCfg: config.DefaultHandlerConfig(),
		retryCfg:   config.DefaultRetryConfig(),
	}
}

// WithHandlerConfig sets custom handler configuration.
func (f *Factory) WithHandlerConfig(cfg config.HandlerConfig) *Factory {
	f.handlerCfg = cfg
	return f
}

// WithRetryConfig sets the budget used by RetryMiddleware.
// A MaxAttempts of 1 or less disables request-level retries.
func (f *Factory) WithRetryConfig(cfg config.RetryConfig) *Factory {
	f.retryCfg = cfg
	return f
}

// Create builds a handler for the configured platform, detecting it from
// the environment when unset or "auto".
func (f *Factory) Create() *Handler {
	if f.handlerCfg.Platform == "" || f.handlerCfg.Platform == "auto" {
		if config.IsLambda() {
			f.handlerCfg.Platform = "lambda"
		} else {
			f.handlerCfg.Platform = "http"
		}
	}

	h := NewHandler(f.worker, f.provider, &f.handlerCfg)
	f.applyDefaultMiddleware(h)

	return h
}

// CreateHTTP builds a handler for the HTTP server.
func (f *Factory) CreateHTTP() *Handler {
	f.handlerCfg.Platform = "http"
	return f.Create()
}

// CreateLambda builds a handler for the Lambda/SQS runtime.
func (f *Factory) CreateLambda() *Handler {
	f.handlerCfg.Platform = "lambda"
	return f.Create()
}

// applyDefaultMiddleware installs, from outermost to innermost:
// recovery, timeout, tracing, metrics, logging, validation, retry.
func (f *Factory) applyDefaultMiddleware(h *Handler) {
	h.Use(RecoveryMiddleware(f.provider))

	if f.handlerCfg.Timeout > 0 {
		h.Use(TimeoutMiddleware(f.handlerCfg.Timeout))
	}

	if f.handlerCfg.EnableTracing {
		h.Use(TracingMiddleware())
	}

	if f.handlerCfg.EnableMetrics {
		h.Use(MetricsMiddleware(f.provider))
	}

	h.Use(LoggingMiddleware(f.provider))
	h.Use(ValidationMiddleware(f.handlerCfg.MaxRequestSize))

	if f.retryCfg.MaxAttempts > 1 {
		h.Use(RetryMiddleware(&f.retryCfg))
	}
}
