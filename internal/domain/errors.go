package domain

import (
	"errors"
	"fmt"
)

// Error codes shared with the transport layer.
const (
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeMissingFunction    = "MISSING_FUNCTION"
	CodeTargetUnauthorized = "TARGET_UNAUTHORIZED"
	CodeTargetUnreachable  = "TARGET_UNREACHABLE"
	CodeBadResponse        = "BAD_RESPONSE"
	CodeGatewayError       = "GATEWAY_ERROR"
	CodeLedgerError        = "LEDGER_ERROR"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error, retryable bool) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

func NewAuthError() *DomainError {
	return NewDomainError(CodeAuthRequired, "Authentication required. Please sign in.", nil, false)
}

func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message, nil, false)
}

func NewNotFoundError(message string) *DomainError {
	return NewDomainError(CodeNotFound, message, nil, false)
}

func NewLedgerError(message string, err error) *DomainError {
	return NewDomainError(CodeLedgerError, message, err, false)
}

// ProbeErrorKind classifies why a probe could not produce a raw status.
type ProbeErrorKind string

const (
	ProbeUnauthorized    ProbeErrorKind = "unauthorized"
	ProbeUnreachable     ProbeErrorKind = "unreachable"
	ProbeMissingFunction ProbeErrorKind = "missing_function"
	ProbeBadResponse     ProbeErrorKind = "bad_response"
)

// ProbeError is returned by probe clients. MissingFunction errors carry the
// SQL an operator runs on the target to install the helper function.
type ProbeError struct {
	Kind       ProbeErrorKind `json:"kind"`
	CheckType  CheckType      `json:"check_type"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code,omitempty"`
	SetupSQL   string         `json:"setup_sql,omitempty"`
	Err        error          `json:"-"`
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s probe %s: %s - %v", e.CheckType, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s probe %s: %s", e.CheckType, e.Kind, e.Message)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Code maps the probe error kind onto a transport error code.
func (e *ProbeError) Code() string {
	switch e.Kind {
	case ProbeUnauthorized:
		return CodeTargetUnauthorized
	case ProbeUnreachable:
		return CodeTargetUnreachable
	case ProbeMissingFunction:
		return CodeMissingFunction
	default:
		return CodeBadResponse
	}
}

// Retryable reports whether running the probe again may succeed.
func (e *ProbeError) Retryable() bool {
	return e.Kind == ProbeUnreachable
}

func NewProbeError(kind ProbeErrorKind, ct CheckType, message string, err error) *ProbeError {
	return &ProbeError{
		Kind:      kind,
		CheckType: ct,
		Message:   message,
		Err:       err,
	}
}

// NewMissingFunctionError builds the error surfaced when the helper
// function for ct is not installed on the target.
func NewMissingFunctionError(ct CheckType, statusCode int) *ProbeError {
	return &ProbeError{
		Kind:       ProbeMissingFunction,
		CheckType:  ct,
		Message:    fmt.Sprintf("function %s is not installed on the target project", SetupFunctionName(ct)),
		StatusCode: statusCode,
		SetupSQL:   SetupSQL(ct),
	}
}

// GatewayError is a failed call to the LLM gateway. Status is zero when
// no response was received.
type GatewayError struct {
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway returned status %d", e.Status)
	}
	return fmt.Sprintf("gateway request failed: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// AsProbeError is a shorthand for errors.As on *ProbeError.
func AsProbeError(err error) (*ProbeError, bool) {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// AsDomainError is a shorthand for errors.As on *DomainError.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
