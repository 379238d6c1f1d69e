// Package shared contains common domain types and errors that are used across
// all analytics packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// ErrValidation marks a malformed request: empty groupBy, unknown field,
	// bad having clause. Raised before any cache access or computation.
	ErrValidation = errors.New("validation error")

	// ErrComputation marks a numeric failure inside an otherwise valid request
	// (empty group for avg/percentile, singular matrix, NaN input).
	ErrComputation = errors.New("computation error")

	// ErrDataInsufficiency marks operations that need a minimum sample size.
	ErrDataInsufficiency = errors.New("insufficient data")

	// ErrDataAccess marks failures of the external data-access collaborator.
	ErrDataAccess = errors.New("data access error")

	// Finer validation kinds; all of them are reported as validation errors.
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrUnknownField    = errors.New("unknown field")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "aggregation", "correlation", "grading"
	Op      string // Operation that failed, e.g., "Aggregate", "Correlate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a validation error with a formatted message.
func NewValidationError(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// NewComputationError creates a computation error with a formatted message.
func NewComputationError(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrComputation, fmt.Sprintf(format, args...))
}

// NewInsufficientDataError reports that fewer than required samples were available.
func NewInsufficientDataError(domain, op string, have, need int) *DomainError {
	return NewDomainError(domain, op, ErrDataInsufficiency,
		fmt.Sprintf("at least %d records required, got %d", need, have))
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrUnknownField)
}

// IsComputation checks if the error is a computation error.
func IsComputation(err error) bool {
	return errors.Is(err, ErrComputation)
}

// IsDataInsufficiency checks if the error reports a too-small sample.
func IsDataInsufficiency(err error) bool {
	return errors.Is(err, ErrDataInsufficiency)
}

// IsDataAccess checks if the error came from the data-access collaborator.
func IsDataAccess(err error) bool {
	return errors.Is(err, ErrDataAccess)
}
