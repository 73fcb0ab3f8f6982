// Package errors provides standardized error handling for the delivery pipeline.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeResolutionFailed    ErrorCode = "RESOLUTION_FAILED"
	ErrCodeInvalidFilter       ErrorCode = "INVALID_FILTER"
	ErrCodeNoRecipients        ErrorCode = "NO_RECIPIENTS"
	ErrCodeMaxAttemptsExceeded ErrorCode = "MAX_ATTEMPTS_EXCEEDED"

	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"

	ErrCodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewResolutionFailedError creates a retryable recipient resolution error.
func NewResolutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeResolutionFailed,
		Message:   "Recipient resolution failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidFilterError creates a non-retryable filter validation error.
func NewInvalidFilterError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidFilter,
		Message:   "Campaign recipient filter is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoRecipientsError creates a terminal zero-recipient error. A filter that
// matches nobody is a configuration problem, not a transient one.
func NewNoRecipientsError(campaignID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoRecipients,
		Message:   "No recipients matched the campaign filter",
		Details:   fmt.Sprintf("campaignId: %d", campaignID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMaxAttemptsExceededError creates a terminal retry-exhaustion error.
func NewMaxAttemptsExceededError(attempts int, lastErr string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMaxAttemptsExceeded,
		Message:   "Job exceeded maximum attempts",
		Details:   fmt.Sprintf("attempts: %d, lastError: %s", attempts, lastErr),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportFailedError creates a per-recipient delivery error. It never
// escalates past the item that produced it.
func NewTransportFailedError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportFailed,
		Message:   fmt.Sprintf("Email delivery via %s failed", provider),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError signals that a campaign hit its per-minute send limit.
func NewRateLimitedError(campaignID int64, limit int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Campaign send rate limit reached",
		Details:   fmt.Sprintf("campaignId: %d, limit: %d/min", campaignID, limit),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSignatureInvalidError creates a fail-closed tracking signature error.
func NewSignatureInvalidError(purpose string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSignatureInvalid,
		Message:   "Tracking signature verification failed",
		Details:   fmt.Sprintf("purpose: %s", purpose),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryable reports whether err is a StandardError marked retryable.
// Unknown error types are treated as retryable so that transient infrastructure
// failures get another attempt.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return true
}

// CodeOf returns the ErrorCode of a StandardError, or empty for other errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Code
	}
	return ""
}
