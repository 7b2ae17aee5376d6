package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeCircuitOpen       = "CIRCUIT_OPEN"
)

// TimelineError is the structured error type returned across the module.
type TimelineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *TimelineError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TimelineError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failure is transient. Only store errors are.
func (e *TimelineError) IsRetryable() bool {
	return e.Code == ErrCodeStore
}

// NewError creates a new TimelineError.
func NewError(code, message string) *TimelineError {
	return &TimelineError{Code: code, Message: message}
}

// NewErrorf creates a new TimelineError with a formatted message.
func NewErrorf(code, format string, args ...any) *TimelineError {
	return &TimelineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *TimelineError) WithNode(nodeID string) *TimelineError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *TimelineError) WithCause(err error) *TimelineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *TimelineError) WithDetails(details map[string]any) *TimelineError {
	e.Details = details
	return e
}

// CodeOf returns the TimelineError code carried by err, or "" when err is not one.
func CodeOf(err error) string {
	var te *TimelineError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}
