package chatsync

import (
	"errors"
	"fmt"
)

// Error represents a chatsync library error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for chatsync operations.
const (
	// ErrCodeNotFound indicates the addressed message does not exist.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeStoreUnavailable indicates the store cannot be reached.
	// Callers should retry the whole step (startup, ingestion run).
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a store operation failed for a non-connectivity reason.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeFeedObservation indicates a single change could not be observed or decoded.
	// The watcher logs it and keeps running.
	ErrCodeFeedObservation = "FEED_OBSERVATION"
)

// Common errors.
var (
	// ErrNotFound is returned when the addressed message does not exist.
	ErrNotFound = &Error{
		Code:    ErrCodeNotFound,
		Message: "message not found",
	}

	// ErrStreamClosed is returned by a ChangeStream after Close or when the
	// underlying subscription ended.
	ErrStreamClosed = &Error{
		Code:    ErrCodeStoreUnavailable,
		Message: "change stream closed",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// hasCode reports whether any *Error in err's chain carries code.
func hasCode(err error, code string) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsNotFound checks if an error is ErrNotFound.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsUnavailable checks if an error reports total store unavailability.
func IsUnavailable(err error) bool {
	return hasCode(err, ErrCodeStoreUnavailable)
}

// IsObservation checks if an error is a per-event change feed error.
func IsObservation(err error) bool {
	return hasCode(err, ErrCodeFeedObservation)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}
