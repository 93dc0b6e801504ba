// Package errors defines the substrate's error taxonomy. Errors preserve
// causal chains across host boundaries (evaluator -> marketplace -> executor)
// so callers can use errors.Is/As while still carrying a structured Kind for
// governance and telemetry to branch on.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure for governance, metrics, and Causal Chain
// metadata (error_category).
type Kind string

const (
	SchemaError       Kind = "SchemaError"
	MissingCapability Kind = "MissingCapability"
	TimeoutError      Kind = "TimeoutError"
	NetworkError      Kind = "NetworkError"
	LLMError          Kind = "LLMError"
	SecurityViolation Kind = "SecurityViolation"
	ApprovalRejected  Kind = "ApprovalRejected"
	GovernanceError   Kind = "GovernanceError"
	RuntimeError      Kind = "RuntimeError"
)

// Error is the substrate's structured error type. It implements Unwrap so
// errors.Is/As compose across a causal chain of wrapped failures.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf formats a message and constructs an Error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error, preserving it as
// the cause so errors.Is/As can still reach it.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf extracts the Kind of err, defaulting to RuntimeError when err is not
// (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return RuntimeError
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	if KindOf(err) == kind {
		return true
	}
	for {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
}
