// Package errors holds the error definitions shared by every housekeeping
// component.
//
// This file provides:
// - Response status codes for the housekeeping protocol
// - Sentinel errors for all error conditions
// - Error category checking functions
// - ErrorToStatus mapping
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Protocol status codes - the int8 status byte of every response packet
// ============================================================================

const (
	StatusOK                int8 = 0
	StatusFailure           int8 = -1
	StatusIllegalSubservice int8 = -2
)

// StatusName returns a human-readable name for a status byte.
func StatusName(status int8) string {
	switch status {
	case StatusOK:
		return "OK"
	case StatusFailure:
		return "Failure"
	case StatusIllegalSubservice:
		return "PKT_ILLEGAL_SUBSERVICE"
	default:
		return fmt.Sprintf("Status(%d)", status)
	}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Argument and configuration errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingField    = errors.New("missing required field")

	// Storage errors
	ErrStorage         = errors.New("storage failure")
	ErrIndexAllocation = errors.New("index allocation failure")
	ErrCorruptRecord   = errors.New("corrupt record")
	ErrNotFound        = errors.New("not found")

	// Protocol errors
	ErrTransmit          = errors.New("transmit failure")
	ErrIllegalSubservice = errors.New("illegal subservice")
	ErrShortPacket       = errors.New("short packet")
	ErrTimeout           = errors.New("timeout")
	ErrConnectionClosed  = errors.New("connection closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorage returns true if err originates in the persistence layer.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrCorruptRecord) ||
		errors.Is(err, ErrIndexAllocation)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsProtocolError returns true if err is a protocol-related error.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrTransmit) ||
		errors.Is(err, ErrIllegalSubservice) ||
		errors.Is(err, ErrShortPacket) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionClosed)
}

// ============================================================================
// Error to status mapping
// ============================================================================

// ErrorToStatus maps an error to the status byte reported to the ground.
func ErrorToStatus(err error) int8 {
	switch {
	case err == nil:
		return StatusOK
	case Is(err, ErrIllegalSubservice):
		return StatusIllegalSubservice
	default:
		return StatusFailure
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Storagef attaches ErrStorage to a backend error so callers can classify it
// with IsStorage while keeping the original cause in the chain.
func Storagef(cause error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrStorage, cause)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType string, identifier interface{}) error {
	return fmt.Errorf("%s '%v': %w", entityType, identifier, ErrNotFound)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid argument error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidArgument)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns all collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
