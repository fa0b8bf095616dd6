// Package apperrors implements the error taxonomy described in
// SPEC_FULL.md §7: a small set of kinds (not Go types) distinguishing
// recoverable task failures from bugs, each carrying a severity and
// optional context. It is a direct descendant of the teacher repo's
// internal/errors package, remapped onto the five kinds this system needs.
package apperrors

import (
	"fmt"
)

// Kind is the error taxonomy from spec.md §7.
type Kind int

// The five error kinds. InvariantError is always a bug.
const (
	KindInput Kind = iota
	KindIO
	KindParse
	KindInvariant
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "InputError"
	case KindIO:
		return "IoError"
	case KindParse:
		return "ParseError"
	case KindInvariant:
		return "InvariantError"
	case KindCancelled:
		return "Cancelled"
	default:
		return "UnknownError"
	}
}

// Severity mirrors the teacher's four-level severity scale; derived
// mechanically from Kind (see severityFor) unless explicitly overridden.
type Severity int

// Severity levels, low to critical.
const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Error is a structured, context-carrying error.
type Error struct {
	Kind     Kind
	Severity Severity
	Message  string
	Cause    error
	Context  map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair, returning e for chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether this error should abort the current task.
func (e *Error) IsFatal() bool {
	return e.Severity >= SeverityHigh
}

func severityFor(k Kind) Severity {
	switch k {
	case KindCancelled:
		return SeverityLow
	case KindInput:
		return SeverityMedium
	case KindParse:
		return SeverityMedium
	case KindIO:
		return SeverityHigh
	case KindInvariant:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// New creates an Error of the given kind with a default severity.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Severity: severityFor(kind), Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap wraps cause as an Error of the given kind. Returns a true nil error
// (not a typed-nil *Error) if cause is nil, so `return apperrors.Wrap(err,
// ...)` is safe to use in a one-line return after a fallible call even when
// the enclosing function's result type is the plain `error` interface.
func Wrap(cause error, kind Kind, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Severity: severityFor(kind), Message: message, Cause: cause}
}

// Wrapf wraps cause with a formatted message.
func Wrapf(cause error, kind Kind, format string, args ...interface{}) error {
	return Wrap(cause, kind, fmt.Sprintf(format, args...))
}

// Convenience constructors, one per kind.

// InputError reports invalid input: a bad source path, malformed
// configuration, or an unknown clustering algorithm/parameter.
func InputError(message string) *Error { return New(KindInput, message) }

// InputErrorf is InputError with formatting.
func InputErrorf(format string, args ...interface{}) *Error {
	return Newf(KindInput, format, args...)
}

// IOError wraps a filesystem or subprocess failure (git invocation, mirror
// update, columnar table write). Returns nil when err is nil.
func IOError(err error, message string) error { return Wrap(err, KindIO, message) }

// IOErrorf wraps an I/O failure with formatting. Returns nil when err is nil.
func IOErrorf(err error, format string, args ...interface{}) error {
	return Wrapf(err, KindIO, format, args...)
}

// ParseError reports an unrecoverable malformed log stream. Only raised in
// strict validation mode; soft/permissive modes never escalate to this.
func ParseError(message string) *Error { return New(KindParse, message) }

// ParseErrorf is ParseError with formatting.
func ParseErrorf(format string, args ...interface{}) *Error {
	return Newf(KindParse, format, args...)
}

// InvariantError reports an internal contract violation — always a bug.
func InvariantError(message string) *Error { return New(KindInvariant, message) }

// InvariantErrorf is InvariantError with formatting.
func InvariantErrorf(format string, args ...interface{}) *Error {
	return Newf(KindInvariant, format, args...)
}

// Cancelled reports cooperative cancellation of a task.
func Cancelled(message string) *Error { return New(KindCancelled, message) }

// IsCancelled reports whether err is a Cancelled apperrors.Error.
func IsCancelled(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindCancelled
}

// KindOf returns the Kind of err, or KindInvariant if err is not an *Error
// (an untyped error reaching a task boundary is itself a sign of a missed
// wrap, so it is treated as a bug rather than silently swallowed).
func KindOf(err error) Kind {
	if err == nil {
		return KindInvariant
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInvariant
}
