// Package http provides the outbound HTTP client used for project probes
// and the LLM gateway. Transient failures are retried with backoff.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"compliance/config"
	"compliance/observability"
	"compliance/observability/types"
)

const maxResponseBytes = 10 * 1024 * 1024

// TransportError reports that no HTTP response was obtained within the
// retry budget.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs requests with per-attempt timeouts and exponential
// backoff. 5xx, 429 and transport errors are retried; the last response
// is returned once the budget is spent so callers can classify it.
type Client struct {
	client  *http.Client
	config  config.HTTPConfig
	retry   config.RetryConfig
	logger  types.Logger
	metrics types.Metrics
}

// NewClient creates a client making up to 1+cfg.MaxRetries attempts.
func NewClient(cfg config.HTTPConfig, retry config.RetryConfig, provider observability.Provider) *Client {
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		config:  cfg,
		retry:   retry,
		logger:  provider.Logger("http.client"),
		metrics: provider.Metrics("http.client"),
	}
}

// Do sends the request. body may be nil. The request is rebuilt for every
// attempt so the body can be replayed.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	attempts := c.config.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastResp *Response
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		resp, err := c.once(ctx, method, url, headers, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastResp, lastErr = nil, err
			c.logger.Warn(ctx, "HTTP request failed", types.Fields{
				"method":  method,
				"attempt": attempt,
				"error":   err.Error(),
			})
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastResp, lastErr = resp, nil
		c.logger.Warn(ctx, "HTTP request returned retryable status", types.Fields{
			"method":  method,
			"attempt": attempt,
			"status":  resp.StatusCode,
		})
	}

	if lastResp != nil {
		return lastResp, nil
	}

	c.metrics.RecordError("http_request", "transport_error")
	return nil, &TransportError{Attempts: attempts, Err: lastErr}
}

func (c *Client) once(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	c.metrics.RecordDuration("http_request", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.metrics.RecordPayloadSize("http_response", int64(len(data)))
	if resp.StatusCode < 400 {
		c.metrics.RecordSuccess("http_request")
	} else {
		c.metrics.RecordError("http_request", fmt.Sprintf("status_%d", resp.StatusCode))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *Client) backoff(retry int) time.Duration {
	multiplier := c.retry.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	d := float64(c.retry.InitialBackoff) * math.Pow(multiplier, float64(retry-1))
	if c.retry.MaxBackoff > 0 && d > float64(c.retry.MaxBackoff) {
		d = float64(c.retry.MaxBackoff)
	}
	return time.Duration(d)
}

func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// IsTransportError reports whether err means the target could not be reached.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
