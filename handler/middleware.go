package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"compliance/config"
	"compliance/observability"
	"compliance/observability/types"

	"github.com/google/uuid"
)

type retryAttemptKey struct{}

// RetryAttempt returns the 1-based attempt number set by RetryMiddleware,
// or 1 outside of it.
func RetryAttempt(ctx context.Context) int {
	if attempt, ok := ctx.Value(retryAttemptKey{}).(int); ok {
		return attempt
	}
	return 1
}

// LoggingMiddleware logs request start and outcome with request context.
// Payload contents and auth metadata are never logged.
func LoggingMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			workerName, _ := ctx.Value(types.WorkerKey).(string)
			platform, _ := ctx.Value(types.PlatformKey).(string)

			requestLogger := provider.Logger("handler").WithFields(types.Fields{
				"request_id": req.ID,
				"type":       req.Type,
				"source":     req.Source,
				"worker":     workerName,
				"platform":   platform,
			})

			requestLogger.Info(ctx, "Processing request", types.Fields{
				"payload_size": len(req.Payload),
			})

			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			switch {
			case err != nil:
				requestLogger.Error(ctx, "Request failed with error", err, types.Fields{
					"duration_ms": duration.Milliseconds(),
				})
			case !resp.Success && resp.Error != nil:
				requestLogger.Warn(ctx, "Request completed with failure", types.Fields{
					"error_code":  resp.Error.Code,
					"error_msg":   resp.Error.Message,
					"duration_ms": duration.Milliseconds(),
				})
			default:
				requestLogger.Info(ctx, "Request completed successfully", types.Fields{
					"duration_ms": duration.Milliseconds(),
				})
			}

			resp.Duration = duration
			return resp, err
		}
	}
}

// MetricsMiddleware records in-progress, duration and outcome per request type.
func MetricsMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			metrics := provider.Metrics("handler")

			operation := req.Type
			if operation == "" {
				operation = "unknown"
			}

			metrics.StartOperation(operation)
			defer metrics.EndOperation(operation)

			metrics.RecordPayloadSize("request", int64(len(req.Payload)))

			start := time.Now()
			resp, err := next(ctx, req)
			metrics.RecordDuration(operation, time.Since(start).Seconds())

			switch {
			case err != nil:
				metrics.RecordError(operation, "processing_error")
			case !resp.Success:
				errorType := "unknown_error"
				if resp.Error != nil {
					errorType = resp.Error.Code
				}
				metrics.RecordError(operation, errorType)
			default:
				metrics.RecordSuccess(operation)
			}

			return resp, err
		}
	}
}

// RecoveryMiddleware turns a panic into an INTERNAL_ERROR response.
// It must be the outermost middleware.
func RecoveryMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (resp Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					provider.Logger("handler").Error(ctx, "Panic recovered", fmt.Errorf("%v", r), types.Fields{
						"request_id": req.ID,
						"worker":     ctx.Value(types.WorkerKey),
						"stack":      string(debug.Stack()),
					})
					provider.Metrics("handler").RecordError("panic", "panic_recovered")

					resp = NewErrorResponse(req.ID, CodeInternalError, "An internal error occurred", "")
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()

			return next(ctx, req)
		}
	}
}

// TracingMiddleware ensures every request carries a trace id and span id,
// in both the context and the response metadata.
func TracingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			traceID := extractTraceID(req)
			if traceID == "" {
				traceID = uuid.New().String()
			}
			spanID := uuid.New().String()

			ctx = context.WithValue(ctx, types.TraceIDKey, traceID)
			ctx = context.WithValue(ctx, types.SpanIDKey, spanID)

			req.SetMetadata(MetadataTraceID, traceID)
			req.SetMetadata(MetadataSpanID, spanID)

			resp, err := next(ctx, req)

			if resp.Metadata == nil {
				resp.Metadata = make(map[string]string)
			}
			resp.Metadata[MetadataTraceID] = traceID
			resp.Metadata[MetadataSpanID] = spanID

			return resp, err
		}
	}
}

// TimeoutMiddleware answers with TIMEOUT once the deadline passes, even if
// the inner handler has not returned yet. The inner handler sees the
// cancelled context and must stop before writing anything durable.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp Response
				err  error
			}
			resultChan := make(chan result, 1)

			go func() {
				resp, err := next(timeoutCtx, req)
				resultChan <- result{resp, err}
			}()

			select {
			case res := <-resultChan:
				return res.resp, res.err

			case <-timeoutCtx.Done():
				if errors.Is(timeoutCtx.Err(), context.Canceled) {
					return NewErrorResponse(req.ID, CodeCancelled, "Request cancelled", ""), timeoutCtx.Err()
				}
				return NewErrorResponse(
					req.ID,
					CodeTimeout,
					"Request processing timed out",
					fmt.Sprintf("Exceeded timeout of %v", timeout),
				), timeoutCtx.Err()
			}
		}
	}
}

// RetryMiddleware re-runs requests whose failure is retryable, with
// exponential backoff, up to cfg.MaxAttempts attempts in total.
func RetryMiddleware(cfg *config.RetryConfig) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			var lastResp Response
			var lastErr error

			for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
				resp, err := next(context.WithValue(ctx, retryAttemptKey{}, attempt), req)

				if err == nil && resp.Success {
					return resp, nil
				}
				if !isRetryable(resp, err) {
					return resp, err
				}

				lastResp = resp
				lastErr = err

				if attempt < cfg.MaxAttempts {
					select {
					case <-ctx.Done():
						return NewErrorResponse(req.ID, CodeCancelled, "Request cancelled during retry", ""), ctx.Err()
					case <-time.After(calculateBackoff(attempt, cfg)):
					}
				}
			}

			if lastErr != nil {
				return lastResp, fmt.Errorf("max attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
			}
			if lastResp.Error != nil {
				lastResp.Error.Details = fmt.Sprintf("Failed after %d attempts", cfg.MaxAttempts)
			}

			return lastResp, nil
		}
	}
}

// ValidationMiddleware rejects requests without a type, with an empty,
// oversized or non-JSON payload, and fills in missing id and timestamp.
func ValidationMiddleware(maxPayloadSize int64) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			if req.ID == "" {
				req.ID = uuid.New().String()
			}
			if req.Timestamp.IsZero() {
				req.Timestamp = time.Now().UTC()
			}

			if req.Type == "" {
				return NewErrorResponse(req.ID, CodeValidationError, "Request type is required", "Missing 'type' field in request"), nil
			}
			if len(req.Payload) == 0 {
				return NewErrorResponse(req.ID, CodeValidationError, "Request payload is required", "Empty payload"), nil
			}
			if maxPayloadSize > 0 && int64(len(req.Payload)) > maxPayloadSize {
				return NewErrorResponse(req.ID, CodeValidationError, "Request payload too large",
					fmt.Sprintf("Payload of %d bytes exceeds %d", len(req.Payload), maxPayloadSize)), nil
			}
			if !json.Valid(req.Payload) {
				return NewErrorResponse(req.ID, CodeValidationError, "Invalid JSON payload", "Payload must be valid JSON"), nil
			}

			if req.Metadata == nil {
				req.Metadata = make(map[string]string)
			}

			return next(ctx, req)
		}
	}
}

func isRetryable(resp Response, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if resp.Error != nil {
		return resp.Error.Retryable || IsRetryableCode(resp.Error.Code)
	}

	return err != nil
}

// calculateBackoff returns the delay before the attempt following attempt.
func calculateBackoff(attempt int, cfg *config.RetryConfig) time.Duration {
	multiplier := cfg.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	backoff := float64(cfg.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	return time.Duration(backoff)
}

func extractTraceID(req Request) string {
	for _, key := range []string{MetadataTraceID, "x-trace-id", "x-b3-traceid", "x-request-id", "correlation-id"} {
		if val, ok := req.Metadata[key]; ok && val != "" {
			return val
		}
	}
	return ""
}
