/*
Package observability provides structured logging and metrics collection
for the compliance engine.

Logs are JSON lines shaped for Loki; metrics are Prometheus collectors by
default, or CloudWatch data points when the provider is configured with a
CloudWatch metrics factory.

# Architecture

	Provider (manages instances per component)
	    ├── Logger (JSON formatted for Loki)
	    └── Metrics (Prometheus or CloudWatch)

Each component (probe.rls, ledger.postgres, advisor, worker) gets its own
logger and metrics instance. The provider caches them so repeated lookups
never register a Prometheus collector twice.

# Usage

	provider := observability.NewProvider(&observability.Config{
	    ServiceName: "compliance-engine",
	    Environment: "production",
	    LogLevel:    "info",
	})
	defer provider.Close()

	logger := provider.Logger("service.check")
	metrics := provider.Metrics("service.check")

	ctx = context.WithValue(ctx, types.ProjectIDKey, projectID)
	logger.Info(ctx, "Check recorded", observability.Fields{
	    "check_type": "rls",
	    "passed":     false,
	})

	metrics.StartOperation("check")
	defer metrics.EndOperation("check")

# Context Integration

The logger extracts these context values if present:
  - trace_id: Distributed tracing identifier
  - request_id: Request correlation identifier
  - project_id: Audited project identifier

Service role keys and bearer tokens must never be placed in fields.

# Metrics Details

  - {component}_processed_total: Counter with labels [status, type]
  - {component}_errors_total: Counter with labels [error_type, operation]
  - {component}_duration_seconds: Histogram with label [operation]
  - {component}_payload_size_bytes: Histogram with label [kind]
  - {component}_in_progress: Gauge with label [operation]

Component names are sanitized into valid Prometheus identifiers, so
"ledger.postgres" becomes "ledger_postgres".

# Testing

	mockProvider := new(mocks.MockProvider)
	mockLogger := new(mocks.MockLogger)
	mockMetrics := new(mocks.MockMetrics)

	mockProvider.On("Logger", "worker").Return(mockLogger)
	mockProvider.On("Metrics", "worker").Return(mockMetrics)
*/
package observability
