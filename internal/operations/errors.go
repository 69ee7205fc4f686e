package operations

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of operation error
type ErrorType string

const (
	ErrorTypeOutOfSequence    ErrorType = "out_of_sequence"
	ErrorTypeInvalidOperation ErrorType = "invalid_operation"
)

// OperationError is returned by ProgressTracker when a caller misuses it.
// The tracker state is never changed by a call that returns one.
type OperationError struct {
	Type    ErrorType              `json:"type"`
	Step    string                 `json:"step,omitempty"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Is reports whether target is an OperationError of the same type,
// so errors.Is(err, ErrOutOfSequence) matches any out-of-sequence error.
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Type == t.Type
}

// Sentinels for errors.Is comparisons
var (
	// ErrOutOfSequence is returned when an update targets a step other than the active one
	ErrOutOfSequence = &OperationError{
		Type:    ErrorTypeOutOfSequence,
		Message: "step is not the active step",
	}

	// ErrInvalidOperation is returned when the tracker is in the wrong state for a call
	ErrInvalidOperation = &OperationError{
		Type:    ErrorTypeInvalidOperation,
		Message: "invalid operation for current state",
	}
)

// NewOutOfSequenceError creates an out-of-sequence error for step
func NewOutOfSequenceError(step, active string) *OperationError {
	msg := "step is not active"
	if active == "" {
		msg = "no step is active"
	}
	return &OperationError{
		Type:    ErrorTypeOutOfSequence,
		Step:    step,
		Message: msg,
		Context: map[string]interface{}{
			"active_step": active,
		},
	}
}

// NewInvalidOperationError creates an invalid-operation error
func NewInvalidOperationError(message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeInvalidOperation,
		Message: message,
	}
}

// GetErrorType returns the type of the error, or "" if it is not an OperationError
func GetErrorType(err error) ErrorType {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	return ""
}
