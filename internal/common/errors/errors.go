// Package errors provides the standardized error taxonomy for the query monitor.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeStore         ErrorCode = "STORE_ERROR"
	ErrCodeSource        ErrorCode = "SOURCE_ERROR"
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e after attaching key/value.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError reports a malformed query draft or post.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports an id absent from the relevant collection.
func NewNotFoundError(kind, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", kind),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Metadata:  map[string]interface{}{"id": id},
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreError wraps a failed durable-storage operation.
func NewStoreError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStore,
		Message:   "Store operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, errString(err)),
		Retryable: true,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSourceError wraps a failed content fetch.
func NewSourceError(queryID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSource,
		Message:   "Content source fetch failed",
		Details:   fmt.Sprintf("queryId: %s, error: %s", queryID, errString(err)),
		Retryable: true,
		Metadata:  map[string]interface{}{"queryId": queryID},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfiguration,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   errString(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Inspection
// ==========================

// AsStandard finds the first StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

func IsValidation(err error) bool { return err != nil && CodeOf(err) == ErrCodeValidation }
func IsNotFound(err error) bool   { return err != nil && CodeOf(err) == ErrCodeNotFound }
func IsStore(err error) bool      { return err != nil && CodeOf(err) == ErrCodeStore }
func IsSource(err error) bool     { return err != nil && CodeOf(err) == ErrCodeSource }

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryableErrorCode reports whether a later attempt may succeed.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeStore, ErrCodeSource:
		return true
	default:
		return false
	}
}

// GetErrorCategory groups codes for logs and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"), strings.Contains(codeStr, "CONFIGURATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "LOOKUP"
	case strings.Contains(codeStr, "STORE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SOURCE"):
		return "SEARCH"
	default:
		return "OTHER"
	}
}
