package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Prerequisite errors: a required file or record is absent
	ErrCodeMissingPrerequisite ErrorCode = "MISSING_PREREQUISITE"

	// Input errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMalformedConfig ErrorCode = "MALFORMED_CONFIG"

	// Storage errors
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// RotationError represents a structured error with context
type RotationError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *RotationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Component, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *RotationError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *RotationError) Is(target error) bool {
	if t, ok := target.(*RotationError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *RotationError) WithMetadata(key string, value interface{}) *RotationError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// NewError creates a new RotationError
func NewError(code ErrorCode, component, message string) *RotationError {
	return &RotationError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with RotationError structure
func WrapError(err error, code ErrorCode, component, message string) *RotationError {
	if err == nil {
		return nil
	}

	return &RotationError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// Common error constructors

// NewMissingPrerequisiteError reports a required file or record that does not exist yet
func NewMissingPrerequisiteError(component, what string, cause error) *RotationError {
	msg := fmt.Sprintf("missing prerequisite %s", what)
	var e *RotationError
	if cause != nil {
		e = WrapError(cause, ErrCodeMissingPrerequisite, component, msg)
	} else {
		e = NewError(ErrCodeMissingPrerequisite, component, msg)
	}
	return e.WithMetadata("prerequisite", what)
}

// NewInvalidInputError reports a malformed or undersized input
func NewInvalidInputError(component, message string) *RotationError {
	return NewError(ErrCodeInvalidInput, component, message)
}

// NewMalformedConfigError reports a server document with an unexpected shape
func NewMalformedConfigError(message string, cause error) *RotationError {
	if cause != nil {
		return WrapError(cause, ErrCodeMalformedConfig, "mutator", message)
	}
	return NewError(ErrCodeMalformedConfig, "mutator", message)
}

// NewStorageUnavailableError reports an unreachable or uninitialized record store
func NewStorageUnavailableError(operation string, cause error) *RotationError {
	msg := fmt.Sprintf("store unavailable during %s", operation)
	if cause != nil {
		return WrapError(cause, ErrCodeStorageUnavailable, "store", msg).WithMetadata("operation", operation)
	}
	return NewError(ErrCodeStorageUnavailable, "store", msg).WithMetadata("operation", operation)
}

// Helper functions

// IsRotationError checks if an error is a RotationError
func IsRotationError(err error) bool {
	var rErr *RotationError
	return errors.As(err, &rErr)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var rErr *RotationError
	if errors.As(err, &rErr) {
		return rErr.Code
	}
	return ErrCodeInternalError
}

// IsCode reports whether err carries the given code anywhere in its chain
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return GetErrorCode(err) == code
}

// ExitCode maps an error to a process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
