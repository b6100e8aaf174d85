package types

import "fmt"

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

const (
	// Input malformation: skip the affected slot or subscription, never abort.
	ErrCodeRecurrenceMalformed ErrorCode = "recurrence_malformed"
	ErrCodeValidationMissing   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationToken     ErrorCode = "validation_invalid_token"

	// Not found (opt-out API).
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"

	// Fatal pre-loop setup failures.
	ErrCodeLockHeld      ErrorCode = "lock_already_held"
	ErrCodeConfigInvalid ErrorCode = "config_invalid"

	// Internal/upstream.
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeEmailBlocked          ErrorCode = "email_blocked"
)

// AppError is the standard application error carrying a stable code for
// branching and an optional wrapped cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewAppError creates an AppError wrapping an optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error represents a transient transport
// condition. A failed send is never recorded in the ledger, so retryable
// failures naturally come back as candidates on the next run.
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeUpstreamEmailProvider, ErrCodeUpstreamRateLimited, ErrCodeUpstreamUnavailable:
		return true
	}
	return false
}
