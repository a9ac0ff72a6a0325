package services

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when an alert payload exceeds
// MaxPayloadBytes. Mapped to HTTP 413 by the API layer.
var ErrPayloadTooLarge = errors.New("alert payload too large")

// ValidationError wraps field-specific validation errors. Mapped to
// HTTP 422 by the API layer.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
