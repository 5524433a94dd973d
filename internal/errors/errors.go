package errors

import (
	stderrors "errors"
	"fmt"
)

// As and Is re-export the standard helpers so callers need a single
// errors import.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// TrentonError is the structured error type for Trenton.
// It provides context for error handling, logging, and API presentation.
type TrentonError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *TrentonError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *TrentonError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with TrentonError.
func (e *TrentonError) Is(target error) bool {
	if t, ok := target.(*TrentonError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *TrentonError) WithDetail(key, value string) *TrentonError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new TrentonError with the given code and message.
// Category and retryable flag are derived from the code.
func New(code string, message string, cause error) *TrentonError {
	return &TrentonError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a TrentonError from an existing error.
// The error's message becomes the TrentonError message.
func Wrap(code string, err error) *TrentonError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *TrentonError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a persistence-related error.
func StorageError(message string, cause error) *TrentonError {
	return New(ErrCodeStorage, message, cause)
}

// ProviderError creates an embedding-provider error.
// Provider errors are typically retryable.
func ProviderError(message string, cause error) *TrentonError {
	return New(ErrCodeProviderUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *TrentonError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NotFound creates a lookup-miss error.
func NotFound(message string) *TrentonError {
	return New(ErrCodeNotFound, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *TrentonError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a TrentonError with the Retryable flag set.
func IsRetryable(err error) bool {
	if te, ok := err.(*TrentonError); ok {
		return te.Retryable
	}
	return false
}
