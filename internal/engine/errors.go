package engine

import (
	"errors"
	"fmt"
)

// Error reports a programmer or configuration error detected by the
// engine. Data validation problems are never reported as errors.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Context identifies the logic or rule context involved, if any.
	Context string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates malformed construction arguments.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeMissingRun indicates parameters were declared without OnRun.
	ErrCodeMissingRun ErrorCode = "MISSING_RUN"

	// ErrCodeDisposed indicates an operation on a disposed context.
	ErrCodeDisposed ErrorCode = "DISPOSED"

	// ErrCodeUnreachable indicates an impossible internal state.
	ErrCodeUnreachable ErrorCode = "UNREACHABLE"

	// ErrCodeDegradedRaise indicates a raise from inside a run that was
	// invoked with failing parameters. Such raises are rejected.
	ErrCodeDegradedRaise ErrorCode = "DEGRADED_RAISE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (context=%s)", e.Code, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsDisposedError returns true if err is a use-after-dispose error.
func IsDisposedError(err error) bool {
	return hasCode(err, ErrCodeDisposed)
}

// IsInvalidArgumentError returns true if err reports malformed arguments.
func IsInvalidArgumentError(err error) bool {
	return hasCode(err, ErrCodeInvalidArgument)
}

// IsMissingRunError returns true if err reports a missing OnRun callback.
func IsMissingRunError(err error) bool {
	return hasCode(err, ErrCodeMissingRun)
}

// IsDegradedRaiseError returns true if err reports a rejected raise.
func IsDegradedRaiseError(err error) bool {
	return hasCode(err, ErrCodeDegradedRaise)
}

func newInvalidArgument(format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func newDisposedError(context string) *Error {
	return &Error{Code: ErrCodeDisposed, Message: "context is disposed", Context: context}
}
