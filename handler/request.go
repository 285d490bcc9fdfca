package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Error codes carried by ErrorResponse.Code. Platform adapters map them
// onto transport status codes.
const (
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMissingFunction    = "MISSING_FUNCTION"
	CodeTargetUnauthorized = "TARGET_UNAUTHORIZED"
	CodeTargetUnreachable  = "TARGET_UNREACHABLE"
	CodeBadResponse        = "BAD_RESPONSE"
	CodeGatewayError       = "GATEWAY_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeCancelled          = "CANCELLED"
	CodeLedgerError        = "LEDGER_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Metadata keys set by platform adapters.
const (
	MetadataUserID    = "user_id"
	MetadataAuthToken = "auth_token"
	MetadataTraceID   = "trace_id"
	MetadataSpanID    = "span_id"
)

// Request represents a platform-agnostic incoming request.
// Adapters (HTTP, Lambda/SQS) translate their native input into a Request.
type Request struct {
	// ID is a unique identifier for the request (for tracing)
	ID string `json:"id"`

	// Source identifies where the request came from (http, sqs)
	Source string `json:"source"`

	// Type selects the operation (check, history, fix, chat)
	Type string `json:"type"`

	// Payload contains the operation input as raw JSON
	Payload json.RawMessage `json:"payload"`

	// Metadata carries transport context such as caller identity and trace ids.
	Metadata map[string]string `json:"metadata,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Response represents a platform-agnostic worker result.
type Response struct {
	// ID correlates with the request ID
	ID string `json:"id"`

	Success bool `json:"success"`

	// Data contains the response payload. It may be set on failures that
	// still carry a result, such as an indeterminate verdict.
	Data json.RawMessage `json:"data,omitempty"`

	Error *ErrorResponse `json:"error,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	ProcessedAt time.Time `json:"processed_at"`

	Duration time.Duration `json:"duration,omitempty"`
}

// ErrorResponse represents structured error information.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "MISSING_FUNCTION")
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details provides additional error context, such as setup SQL
	Details string `json:"details,omitempty"`

	// Retryable indicates if the operation can be retried
	Retryable bool `json:"retryable,omitempty"`
}

// NewRequest creates a new request with generated ID and timestamp.
func NewRequest(requestType string, payload interface{}) (Request, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Request{}, err
	}

	return Request{
		ID:        uuid.New().String(),
		Type:      requestType,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Unmarshal decodes the request payload into v.
func (r *Request) Unmarshal(v interface{}) error {
	return json.Unmarshal(r.Payload, v)
}

// Marshal encodes v into the response data.
func (r *Response) Marshal(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Data = data
	return nil
}

// NewErrorResponse creates an error response. Retryable is derived from code.
func NewErrorResponse(id string, code string, message string, details string) Response {
	return Response{
		ID:      id,
		Success: false,
		Error: &ErrorResponse{
			Code:      code,
			Message:   message,
			Details:   details,
			Retryable: IsRetryableCode(code),
		},
		Metadata:    make(map[string]string),
		ProcessedAt: time.Now().UTC(),
	}
}

// NewSuccessResponse creates a success response.
func NewSuccessResponse(id string, data interface{}) (Response, error) {
	resp := Response{
		ID:          id,
		Success:     true,
		ProcessedAt: time.Now().UTC(),
		Metadata:    make(map[string]string),
	}

	if data != nil {
		if err := resp.Marshal(data); err != nil {
			return Response{}, err
		}
	}

	return resp, nil
}

// IsRetryableCode reports whether a failure with this code may succeed on
// a later attempt. Only transient target outages qualify; a timeout has
// already spent the request budget.
func IsRetryableCode(code string) bool {
	switch code {
	case CodeTargetUnreachable:
		return true
	default:
		return false
	}
}

// SetMetadata adds or updates metadata on the request.
func (r *Request) SetMetadata(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// GetMetadata retrieves metadata from the request.
func (r *Request) GetMetadata(key string) (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	val, ok := r.Metadata[key]
	return val, ok
}
