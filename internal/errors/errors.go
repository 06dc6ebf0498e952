// Package errors defines the coded error taxonomy shared by the tree model,
// the mutation engine and the reconciliation service.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// DuplicateNode indicates the insertion target is already occupied by an
	// equal-ranked sibling
	DuplicateNode ErrorCode = "DUPLICATE_NODE"
	// NodeNotFound indicates a removal/rename target is missing from its
	// expected parent or registry
	NodeNotFound ErrorCode = "NODE_NOT_FOUND"
	// ConsistencyViolation indicates a parent/registry mismatch
	ConsistencyViolation ErrorCode = "CONSISTENCY_VIOLATION"
	// ReloadFailure indicates a content reload (analysis/project) failed
	ReloadFailure ErrorCode = "RELOAD_FAILURE"
	// InvalidArgument indicates a malformed request (empty name, bad path)
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// Cancelled indicates the operation was aborted through its context
	Cancelled ErrorCode = "CANCELLED"
)

// Severity tells callers whether an error aborts the operation or is
// recovered locally with a warning.
type Severity string

const (
	// Fatal errors abort the single operation and are returned to the caller
	Fatal Severity = "fatal"
	// Recoverable errors are logged and the surrounding pass continues
	Recoverable Severity = "recoverable"
)

var codeSeverity = map[ErrorCode]Severity{
	DuplicateNode:        Fatal,
	NodeNotFound:         Fatal,
	InvalidArgument:      Fatal,
	Cancelled:            Fatal,
	ConsistencyViolation: Recoverable,
	ReloadFailure:        Recoverable,
}

// Error is a coded error with an optional underlying cause
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Path    string      `json:"path,omitempty"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new Error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new Error with a formatted message and no cause
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = msg + " (" + e.Path + ")"
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithPath records the node path the error refers to
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Severity returns how the error should be propagated
func (e *Error) Severity() Severity {
	if s, ok := codeSeverity[e.Code]; ok {
		return s
	}
	return Fatal
}

// Sentinels for errors.Is comparisons.
var (
	ErrDuplicateNode        = &Error{Code: DuplicateNode}
	ErrNodeNotFound         = &Error{Code: NodeNotFound}
	ErrConsistencyViolation = &Error{Code: ConsistencyViolation}
	ErrReloadFailure        = &Error{Code: ReloadFailure}
	ErrInvalidArgument      = &Error{Code: InvalidArgument}
	ErrCancelled            = &Error{Code: Cancelled}
)

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsRecoverable reports whether err should be logged and skipped rather than
// aborting the surrounding pass.
func IsRecoverable(err error) bool {
	code := CodeOf(err)
	return code != "" && codeSeverity[code] == Recoverable
}

// Is is the standard library errors.Is, re-exported so callers need only
// this package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is the standard library errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join is the standard library errors.Join.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
