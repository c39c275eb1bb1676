// Package errors defines the build's error taxonomy. Skippable-row errors
// drop a single input row and keep the build going; configuration errors
// fall back to safe defaults; backend errors are fatal and propagate to the
// caller untouched (retrying I/O belongs to the external sink).
package errors

import (
	"fmt"
)

// Kind categorizes an error.
type Kind int

const (
	// KindSkippableRow - a malformed input row; skip it, count it, continue.
	KindSkippableRow Kind = iota
	// KindConfig - invalid configuration; the consumer substitutes a safe default.
	KindConfig
	// KindBackend - read/write failure at the sink/loader boundary; fatal.
	KindBackend
	// KindInternal - unexpected internal state.
	KindInternal
)

// Severity represents how critical an error is.
type Severity int

const (
	// SeverityLow - can continue with degraded results.
	SeverityLow Severity = iota
	// SeverityMedium - should be surfaced but not fatal.
	SeverityMedium
	// SeverityCritical - stops the build.
	SeverityCritical
)

// Error is a structured error with kind, severity, and key/value context.
type Error struct {
	Kind     Kind
	Severity Severity
	Message  string
	Cause    error
	Context  map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on kind, so callers can test categories with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether this error should stop the build.
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// New creates an error with the given kind, severity, and message.
func New(kind Kind, severity Severity, message string) *Error {
	return &Error{
		Kind:     kind,
		Severity: severity,
		Message:  message,
		Context:  make(map[string]interface{}),
	}
}

// Wrap wraps a cause with kind and severity.
func Wrap(err error, kind Kind, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:     kind,
		Severity: severity,
		Message:  message,
		Cause:    err,
		Context:  make(map[string]interface{}),
	}
}

// SkippableRowf creates a skippable-row error.
func SkippableRowf(format string, args ...interface{}) *Error {
	return New(KindSkippableRow, SeverityLow, fmt.Sprintf(format, args...))
}

// ConfigErrorf creates a configuration error. Configuration errors are
// never fatal: each consumer specifies its own safe fallback.
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(KindConfig, SeverityMedium, fmt.Sprintf(format, args...))
}

// BackendError wraps a loader/sink failure.
func BackendError(err error, message string) *Error {
	return Wrap(err, KindBackend, SeverityCritical, message)
}

// BackendErrorf wraps a loader/sink failure with formatting.
func BackendErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindBackend, SeverityCritical, fmt.Sprintf(format, args...))
}

// InternalErrorf creates an internal error.
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(KindInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal reports whether an error should stop the build.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.IsFatal()
	}
	return true
}

// IsSkippable reports whether an error only invalidates a single row.
func IsSkippable(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindSkippableRow
}

// GetKind returns the kind of an error, defaulting to KindInternal.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}
