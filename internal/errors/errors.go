package errors

import (
	"fmt"
)

// CoreError is the structured error type for the retrieval core.
// It provides rich context for error handling, logging, and caller presentation.
type CoreError struct {
	// Code is the unique error code (e.g., "ERR_201_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Query, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CoreError.
func (e *CoreError) Is(target error) bool {
	if t, ok := target.(*CoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new CoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CoreError {
	return &CoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CoreError from an existing error.
// The error's message becomes the CoreError message.
func Wrap(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound creates a not-found error for the given key description.
func NotFound(what string) *CoreError {
	return New(ErrCodeNotFound, what+" not found", nil)
}

// Validation creates an input validation error.
func Validation(message string) *CoreError {
	return New(ErrCodeInvalidInput, message, nil)
}

// DimensionMismatch creates a dimensionality validation error.
func DimensionMismatch(expected, got int) *CoreError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil)
}

// MissingVector creates an error for an upsert that requires a vector but got none.
func MissingVector(id string) *CoreError {
	return New(ErrCodeMissingVector,
		fmt.Sprintf("no vector supplied for %q and the core never invokes embedding models", id), nil)
}

// Timeout creates a deadline-exceeded query error.
func Timeout(message string, cause error) *CoreError {
	return New(ErrCodeTimeout, message, cause)
}

// IndexUnavailable creates an error for queries against an unbuilt index.
func IndexUnavailable(modelTag string) *CoreError {
	return New(ErrCodeIndexUnavailable,
		fmt.Sprintf("index for model %q not built yet, rebuild in progress or required", modelTag), nil)
}

// IndexInconsistency creates an error for store/index divergence.
func IndexInconsistency(message string, cause error) *CoreError {
	return New(ErrCodeIndexInconsistency, message, cause)
}

// Internal creates an internal error.
func Internal(message string, cause error) *CoreError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a CoreError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CoreError); ok {
		return ce.Retryable
	}
	return false
}

// GetCode extracts the error code from a CoreError.
// Returns empty string if not a CoreError.
func GetCode(err error) string {
	if ce, ok := err.(*CoreError); ok {
		return ce.Code
	}
	return ""
}

// HasCode reports whether err (or any error in its chain) carries the code.
func HasCode(err error, code string) bool {
	for err != nil {
		if ce, ok := err.(*CoreError); ok && ce.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
