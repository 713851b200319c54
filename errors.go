package flowstate

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeConnection        = "CONNECTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDecode            = "DECODE_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeValidation        = "VALIDATION_ERROR"
)

// Sentinels matched by errors.Is against a *StateError of the same code
var (
	ErrConnection        = errors.New("backend not connected")
	ErrNotFound          = errors.New("execution not found")
	ErrDecode            = errors.New("record could not be decoded")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrValidation        = errors.New("validation failed")

	// ErrKeyNotFound is returned by backends when a key is absent or expired
	ErrKeyNotFound = errors.New("key not found")
)

var sentinelByCode = map[string]error{
	ErrCodeConnection:        ErrConnection,
	ErrCodeNotFound:          ErrNotFound,
	ErrCodeDecode:            ErrDecode,
	ErrCodeInvalidTransition: ErrInvalidTransition,
	ErrCodeValidation:        ErrValidation,
}

// StateError represents a failure of a tracker operation
type StateError struct {
	Code        string
	Message     string
	ExecutionID string
	Err         error
}

// Error implements the error interface
func (e *StateError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.ExecutionID != "" {
		msg += fmt.Sprintf(" (execution: %s)", e.ExecutionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *StateError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error registered for the error code
func (e *StateError) Is(target error) bool {
	sentinel, ok := sentinelByCode[e.Code]
	return ok && sentinel == target
}

// NewConnectionError wraps a backend connectivity failure
func NewConnectionError(message string, cause error) *StateError {
	return &StateError{Code: ErrCodeConnection, Message: message, Err: cause}
}

// NewNotFoundError reports a missing or expired execution
func NewNotFoundError(executionID string) *StateError {
	return &StateError{
		Code:        ErrCodeNotFound,
		Message:     "execution not found",
		ExecutionID: executionID,
	}
}

// NewDecodeError reports a stored record that could not be parsed
func NewDecodeError(cause error) *StateError {
	return &StateError{Code: ErrCodeDecode, Message: "failed to decode record", Err: cause}
}

// NewTransitionError reports a state change the state machine forbids
func NewTransitionError(executionID string, from, to ExecutionState) *StateError {
	return &StateError{
		Code:        ErrCodeInvalidTransition,
		Message:     fmt.Sprintf("cannot move from %s to %s", from, to),
		ExecutionID: executionID,
	}
}

// NewValidationError reports an invalid argument
func NewValidationError(message string) *StateError {
	return &StateError{Code: ErrCodeValidation, Message: message}
}

// IsNotFound checks if an error reports a missing execution
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConnectionError checks if an error reports a connectivity failure
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsDecodeError checks if an error reports an undecodable record
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}
