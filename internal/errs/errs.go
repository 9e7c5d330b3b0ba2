// Package errs defines the error taxonomy shared by the fan-out pipeline.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when a non-participant posts to a private room
	// or a non-author mutates a message. Nothing is persisted.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced room, message, attachment or
	// blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks a retryable storage or transport failure.
	ErrTransient = errors.New("transient failure")
)

// ValidationError carries field-level detail for rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for a field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Transient wraps err so it matches ErrTransient while keeping the cause.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
