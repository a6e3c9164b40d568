package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrServiceNotFound     = fmt.Errorf("service: %w", ErrNotFound)
	ErrFieldNotFound       = fmt.Errorf("field: %w", ErrNotFound)
	ErrActionNotFound      = fmt.Errorf("action: %w", ErrNotFound)
	ErrInvalidID           = fmt.Errorf("id: %w", ErrInvalidInput)
	ErrInvalidSRID         = fmt.Errorf("srid: %w", ErrInvalidInput)
	ErrUnsupportedDialect  = fmt.Errorf("dialect: %w", ErrUnsupported)
	ErrUnsupportedGeomType = fmt.Errorf("geom type: %w", ErrUnsupported)
	ErrNoRows              = fmt.Errorf("query returned no rows: %w", ErrNotFound)
	ErrDatabaseUnavailable = fmt.Errorf("database: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string // Field that failed validation
	Value      any    // The invalid value
	Constraint string // The constraint that was violated
	Message    string // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (constraint: %s)",
		e.Field, e.Message, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// QueryError represents an error during a query operation.
type QueryError struct {
	Service string // Service name
	Field   string // Field name
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("query error in service %s, field %s: %v",
			e.Service, e.Field, e.Err)
	}
	return fmt.Sprintf("query error in service %s: %v", e.Service, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
