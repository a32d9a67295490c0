// Package protocol defines the errors raised when a caller breaks the
// objection and test lifecycle protocol.
//
// Violations are programming errors. They are returned at the call site and
// never retried or swallowed by the lifecycle core.
package protocol

import (
	"errors"
	"fmt"
)

// Code categorizes a protocol violation.
type Code string

const (
	// ErrCodeAlreadyDropped indicates an objection was dropped twice.
	ErrCodeAlreadyDropped Code = "ALREADY_DROPPED"

	// ErrCodeNotRaised indicates an objection is not in the ledger it names.
	ErrCodeNotRaised Code = "NOT_RAISED"

	// ErrCodeWrongLedger indicates an objection was dropped through a ledger
	// that did not issue it.
	ErrCodeWrongLedger Code = "WRONG_LEDGER"

	// ErrCodeNotRunning indicates an objection was requested by a component
	// that has not entered its run phase.
	ErrCodeNotRunning Code = "NOT_RUNNING"

	// ErrCodeAlreadyRunning indicates a second test tried to claim a kernel.
	ErrCodeAlreadyRunning Code = "ALREADY_RUNNING"

	// ErrCodeTerminated indicates a finished test was started again.
	ErrCodeTerminated Code = "TERMINATED"
)

// ViolationError describes a single protocol violation.
type ViolationError struct {
	// Code identifies the violation.
	Code Code

	// Message is a human-readable description.
	Message string

	// Subject names the objection, component, or test involved.
	Subject string
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a ViolationError.
func New(code Code, subject, message string) *ViolationError {
	return &ViolationError{Code: code, Subject: subject, Message: message}
}

// Is reports whether err is a ViolationError with the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	var ve *ViolationError
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}

// IsViolation reports whether err is any protocol violation.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}
