package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during prediction operations.
var (
	// ErrValidation indicates that scorer input or configuration is malformed.
	// Every ValidationError unwraps to it.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientQuorum indicates that fewer providers were enabled than
	// a consensus requires.
	ErrInsufficientQuorum = errors.New("insufficient quorum")

	// ErrUnknownProvider indicates a provider identifier outside the four
	// recognized slots.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap returns ErrValidation so callers can match with errors.Is.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddErrorf adds a formatted error message to the validation error.
func (e *ValidationError) AddErrorf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// ErrOrNil returns the receiver as an error when it holds failures and nil
// otherwise, so callers can accumulate and return in one step.
func (e *ValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// InsufficientQuorumError is returned by the consensus aggregator when fewer
// than Required providers are enabled. It is raised before any provider is
// invoked.
type InsufficientQuorumError struct {
	// Enabled is the number of providers that had usable credentials.
	Enabled int

	// Required is the minimum number of enabled providers.
	Required int
}

// Error implements the error interface for InsufficientQuorumError.
func (e *InsufficientQuorumError) Error() string {
	return fmt.Sprintf("insufficient quorum: %d provider(s) enabled, at least %d required", e.Enabled, e.Required)
}

// Unwrap returns ErrInsufficientQuorum.
func (e *InsufficientQuorumError) Unwrap() error { return ErrInsufficientQuorum }
