// Package types holds the observability contracts shared by every component
// of the compliance engine.
//
// Design Patterns:
//   - Provider Pattern: Manages instances and configuration
//   - Dependency Inversion: Core depends on interfaces, not implementations
package types

import (
	"context"
	"io"
)

// ContextKey is the type of context keys read by loggers.
type ContextKey string

// Context keys propagated from the handler into log entries.
const (
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	RequestIDKey ContextKey = "request_id"
	ProjectIDKey ContextKey = "project_id"
	WorkerKey    ContextKey = "worker"
	PlatformKey  ContextKey = "platform"
)

// Logger defines the contract for structured logging.
// Implementations should provide JSON-formatted output suitable for log aggregation systems like Loki.
// All methods are context-aware to support request tracing and correlation.
type Logger interface {
	// Info logs an informational message.
	// Use for general operational information that doesn't require action.
	//
	// Parameters:
	//   - ctx: Context for request tracing and cancellation
	//   - msg: The log message describing the event
	//   - fields: Additional structured fields for context
	Info(ctx context.Context, msg string, fields Fields)

	// Error logs an error message with the associated error.
	// Use for errors that indicate failures in the application.
	//
	// Parameters:
	//   - ctx: Context for request tracing and cancellation
	//   - msg: The log message describing the error context
	//   - err: The error object to be logged
	//   - fields: Additional structured fields for context
	Error(ctx context.Context, msg string, err error, fields Fields)

	// Warn logs a warning message.
	// Use for potentially harmful situations that don't prevent operation.
	//
	// Parameters:
	//   - ctx: Context for request tracing and cancellation
	//   - msg: The log message describing the warning
	//   - fields: Additional structured fields for context
	Warn(ctx context.Context, msg string, fields Fields)

	// Debug logs a debug message.
	// These messages are typically filtered out in production.
	//
	// Parameters:
	//   - ctx: Context for request tracing and cancellation
	//   - msg: The log message with debugging information
	//   - fields: Additional structured fields for context
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a new Logger instance with additional persistent fields.
	// The returned logger will include these fields in all subsequent log entries.
	//
	// Parameters:
	//   - fields: Fields to be included in all log entries from the returned logger
	//
	// Returns:
	//   - A new Logger instance with the additional fields
	WithFields(fields Fields) Logger
}

// Metrics defines the contract for metrics collection.
// The Prometheus implementation follows Prometheus naming conventions; the
// CloudWatch implementation maps the same calls onto metric data points.
type Metrics interface {
	// RecordSuccess increments the success counter for a specific operation type.
	//
	// Parameters:
	//   - operationType: The type of operation that succeeded (e.g., "check_mfa", "ledger_append")
	RecordSuccess(operationType string)

	// RecordError increments the error counter for a specific operation and error type.
	//
	// Parameters:
	//   - operationType: The type of operation that failed
	//   - errorType: The category of error (e.g., "target_unreachable", "missing_function")
	RecordError(operationType string, errorType string)

	// RecordDuration records the duration of an operation in seconds.
	//
	// Parameters:
	//   - operation: Name of the operation being measured
	//   - duration: Duration in seconds (use time.Since(start).Seconds())
	RecordDuration(operation string, duration float64)

	// RecordPayloadSize records the size of a payload exchanged with a remote system.
	//
	// Parameters:
	//   - kind: Payload kind (e.g., "probe_response", "gateway_response")
	//   - bytes: Size in bytes
	RecordPayloadSize(kind string, bytes int64)

	// StartOperation increments the in-progress gauge for an operation.
	// Must be paired with EndOperation.
	//
	// Parameters:
	//   - operation: Name of the operation starting
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	//
	// Parameters:
	//   - operation: Name of the operation ending (must match StartOperation)
	EndOperation(operation string)
}

// Fields represents structured logging fields as key-value pairs.
//
// Example:
//
//	fields := Fields{
//		"project_id": "2d1f...",
//		"check_type": "rls",
//		"passed":     false,
//	}
type Fields map[string]interface{}

// Config holds configuration for the observability provider.
type Config struct {
	// ServiceName identifies the service in logs and metrics.
	ServiceName string

	// Environment specifies the deployment environment (e.g., "production", "staging").
	Environment string

	// LogLevel sets the minimum log level ("debug", "info", "warn", "error").
	LogLevel string

	// LogOutput specifies where logs are written. Defaults to os.Stdout if nil.
	LogOutput io.Writer

	// AdditionalFields are included in every log entry.
	AdditionalFields Fields

	// MetricsFactory builds the collector for a component.
	// Prometheus is used when nil.
	MetricsFactory func(component string) Metrics
}

// Provider defines the contract for observability providers.
type Provider interface {
	// Logger returns a Logger instance for the specified component.
	// Multiple calls with the same component name return the same instance.
	Logger(component string) Logger

	// Metrics returns a Metrics instance for the specified component.
	// Multiple calls with the same component name return the same instance.
	Metrics(component string) Metrics

	// Close releases any resources held by the provider.
	Close() error
}
