package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found
	ErrJobNotFound = errors.New("job not found")

	// ErrItemNotClaimed is returned when recording an outcome for an item that is not IN_PROGRESS
	ErrItemNotClaimed = errors.New("item not found or not in IN_PROGRESS status")

	// ErrInvalidOutcome is returned for outcomes missing their recipe id or error detail
	ErrInvalidOutcome = errors.New("invalid item outcome")

	// ErrStoreUnavailable marks failures of the backing store itself
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidPayload is returned when a job message is malformed
	ErrInvalidPayload = errors.New("invalid job payload")
)

// ValidationError reports malformed caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NewValidationError creates a new validation error
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
