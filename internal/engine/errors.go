package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an error detected while running a cycle.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// CycleID identifies the affected cycle.
	CycleID string

	// Err is the underlying error.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidInput indicates malformed snapshot records. The cycle is
	// aborted with no output; the next cycle recomputes from scratch.
	ErrCodeInvalidInput RuntimeErrorCode = "INVALID_INPUT"

	// ErrCodeNonTerminating indicates the closure exceeded its pass bound.
	// This is an internal invariant violation, not a data problem.
	ErrCodeNonTerminating RuntimeErrorCode = "NON_TERMINATING"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.CycleID != "" {
		return fmt.Sprintf("%s: %s (cycle=%s)", e.Code, e.Message, e.CycleID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsInvalidInput returns true if the error is an invalid input error.
// Uses errors.As to handle wrapped errors.
func IsInvalidInput(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidInput
	}
	return false
}

// IsInternal returns true if the error reports a broken engine invariant.
func IsInternal(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeNonTerminating
	}
	return false
}

// NewInvalidInputError creates a RuntimeError for rejected input.
func NewInvalidInputError(cycleID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidInput,
		Message: err.Error(),
		CycleID: cycleID,
		Err:     err,
	}
}

// NewNonTerminatingError creates a RuntimeError for a runaway closure.
func NewNonTerminatingError(cycleID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNonTerminating,
		Message: "reachability closure did not converge: " + err.Error(),
		CycleID: cycleID,
		Err:     err,
	}
}
