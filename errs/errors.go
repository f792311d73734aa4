// Package errs defines the error taxonomy shared by every graph-store
// subsystem, so engines never let a bare error escape a subsystem boundary
// as an undifferentiated failure.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into the response shape the transport layer
// maps onto an HTTP status code.
type Kind string

const (
	// BadRequest marks a structurally invalid request, or a forbidden
	// pagination combination.
	BadRequest Kind = "BadRequest"
	// NotFound marks a read/update/restore that targeted a row or cursor
	// that does not exist.
	NotFound Kind = "NotFound"
	// DeleteFailed marks a required delete that affected zero rows.
	DeleteFailed Kind = "DeleteFailed"
	// UnknownOperation marks a dispatch envelope naming an unknown
	// (type, operation) pair.
	UnknownOperation Kind = "UnknownOperation"
	// Unexpected wraps any other failure.
	Unexpected Kind = "Unexpected"
)

// Error is the error type every engine method returns. It never escapes a
// subsystem boundary as a bare error from a different package.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// FromCause wraps any condition that does not map to one of the named
// kinds; the propagation policy in the spec routes everything else here.
func FromCause(cause error) *Error {
	return &Error{Kind: Unexpected, Msg: "unexpected error", Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to Unexpected otherwise. A nil err reports "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unexpected
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
