// Package engine provides the core types for the furrow provisioning engine:
// Steps, Plans, and the sequential executor that drives Check/Apply cycles.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: package mirror timeouts, certificate authority rate
	// limiting.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, a cyclic plan, permission denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// StepError represents a classified error with step context.
type StepError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Step is the step name that caused the error, if applicable.
	Step string `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step=%s): %s", e.Class, e.Message, e.Step, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *StepError) Is(target error) bool {
	t, ok := target.(*StepError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *StepError {
	return &StepError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *StepError {
	return &StepError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithStep adds step context to an error.
func (e *StepError) WithStep(name string) *StepError {
	e.Step = name
	return e
}

// WithCode adds an error code to an error.
func (e *StepError) WithCode(code string) *StepError {
	e.Code = code
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *StepError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *StepError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsTimeout returns true if the error carries the timeout code.
func IsTimeout(err error) bool {
	var e *StepError
	if errors.As(err, &e) {
		return e.Code == ErrCodeTimeout
	}
	return false
}

// Classify converts an arbitrary error into a StepError. Errors that are
// already classified pass through unchanged; everything else is treated as a
// permanent apply failure.
func Classify(err error) *StepError {
	if err == nil {
		return nil
	}
	var e *StepError
	if errors.As(err, &e) {
		return e
	}
	return NewPermanentError("apply failed", err).WithCode(ErrCodeApplyFailed)
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeCyclicDependency = "CYCLIC_DEPENDENCY"
	ErrCodeCheckFailed      = "CHECK_FAILED"
	ErrCodeApplyFailed      = "APPLY_FAILED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
