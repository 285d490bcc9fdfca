// Package metrics provides the collectors behind types.Metrics: Prometheus
// for long running servers and CloudWatch for Lambda deployments.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements types.Metrics with collectors registered on
// prometheus.DefaultRegisterer. All metric names share the prefix passed to New.
type PrometheusMetrics struct {
	prefix string

	processedTotal   *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	durationSeconds  *prometheus.HistogramVec
	payloadSizeBytes *prometheus.HistogramVec
	inProgress       *prometheus.GaugeVec
}

// New creates and registers the collectors:
//   - {prefix}_processed_total{status,type}
//   - {prefix}_errors_total{error_type,operation}
//   - {prefix}_duration_seconds{operation}
//   - {prefix}_payload_size_bytes{kind}
//   - {prefix}_in_progress{operation}
//
// It panics if a collector with the same name is already registered.
func New(prefix string) *PrometheusMetrics {
	m := &PrometheusMetrics{
		prefix: prefix,
		processedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_processed_total", prefix),
				Help: fmt.Sprintf("Total operations processed by %s", prefix),
			},
			[]string{"status", "type"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_errors_total", prefix),
				Help: fmt.Sprintf("Total errors in %s", prefix),
			},
			[]string{"error_type", "operation"},
		),
		// Probe calls and gateway requests both sit well under a minute.
		durationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    fmt.Sprintf("%s_duration_seconds", prefix),
				Help:    fmt.Sprintf("Operation duration in %s", prefix),
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		payloadSizeBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    fmt.Sprintf("%s_payload_size_bytes", prefix),
				Help:    fmt.Sprintf("Payload sizes exchanged by %s", prefix),
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"kind"},
		),
		inProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: fmt.Sprintf("%s_in_progress", prefix),
				Help: fmt.Sprintf("Operations in progress in %s", prefix),
			},
			[]string{"operation"},
		),
	}

	prometheus.MustRegister(
		m.processedTotal,
		m.errorsTotal,
		m.durationSeconds,
		m.payloadSizeBytes,
		m.inProgress,
	)

	return m
}

// RecordSuccess increments {prefix}_processed_total with status="success".
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError increments both the processed counter (status="error") and
// the error counter, so failure rates and error breakdowns come from one call.
//
// Example:
//
//	metrics.RecordError("check_rls", "missing_function")
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration observes a duration in seconds.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordPayloadSize observes a payload size in bytes.
func (m *PrometheusMetrics) RecordPayloadSize(kind string, bytes int64) {
	m.payloadSizeBytes.WithLabelValues(kind).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge.
//
// Example:
//
//	metrics.StartOperation("check")
//	defer metrics.EndOperation("check")
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}
