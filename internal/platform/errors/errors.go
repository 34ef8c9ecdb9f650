// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
	"strings"
)

// ErrorCode defines supported error codes used across the logging engine
// Values are stable for wire compatibility; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodePanic is for recovered panics
	ErrorCodePanic

	// ErrorCodeUnavailable is for transient errors where retry may succeed
	ErrorCodeUnavailable

	// ErrorCodeInvalidConfig is for construction-time configuration errors
	ErrorCodeInvalidConfig

	// ErrorCodeUnknownArtifact is for records submitted under an unregistered artifact type
	ErrorCodeUnknownArtifact

	// ErrorCodeSchemaViolation is for records failing required-field or type checks
	ErrorCodeSchemaViolation

	// ErrorCodeSchemaConflict is for incompatible schema re-registration (startup error)
	ErrorCodeSchemaConflict

	// ErrorCodeWriterEncode is for columnar encode failures (handled by fallback)
	ErrorCodeWriterEncode

	// ErrorCodeWriterIO is for disk write failures (retryable)
	ErrorCodeWriterIO
)

// String returns a stable label for the code
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodePanic:
		return "panic"
	case ErrorCodeUnavailable:
		return "unavailable"
	case ErrorCodeInvalidConfig:
		return "invalid_config"
	case ErrorCodeUnknownArtifact:
		return "unknown_artifact"
	case ErrorCodeSchemaViolation:
		return "schema_violation"
	case ErrorCodeSchemaConflict:
		return "schema_conflict"
	case ErrorCodeWriterEncode:
		return "writer_encode"
	case ErrorCodeWriterIO:
		return "writer_io"
	default:
		return "unknown"
	}
}

// Violation is one field-level diagnostic attached to a schema validation error.
// Validate reports all of them in one pass, never just the first
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (v Violation) String() string { return v.Field + ": " + v.Reason }

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing
// field is optional (single-field errors); op is optional operation tag
// violations carries the full diagnostic list for schema errors
// orig is the wrapped cause
type Error struct {
	orig       error
	msg        string
	code       ErrorCode
	field      string
	op         string
	violations []Violation
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.msg
	if len(e.violations) > 0 {
		parts := make([]string, 0, len(e.violations))
		for _, v := range e.violations {
			parts = append(parts, v.String())
		}
		msg = msg + " [" + strings.Join(parts, "; ") + "]"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", msg, e.orig)
	}
	return msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Violations returns the full field-level diagnostic list, if any
func (e *Error) Violations() []Violation { return e.violations }

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// ViolationsOf extracts the violation list from any error (nil when absent)
func ViolationsOf(err error) []Violation {
	if e, ok := As(err); ok {
		return e.violations
	}
	return nil
}

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Mutators (copy-on-write)

// WithField attaches a field to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// WithOp attaches an operation label to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// WithViolations returns a schema violation *Error carrying the full diagnostic list
func WithViolations(msg string, vs []Violation) error {
	return &Error{code: ErrorCodeSchemaViolation, msg: msg, violations: vs}
}

// Sugar

// UnknownArtifactf returns an unknown artifact type error
func UnknownArtifactf(format string, a ...any) error { return Newf(ErrorCodeUnknownArtifact, format, a...) }

// SchemaConflictf returns a schema registration conflict error
func SchemaConflictf(format string, a ...any) error { return Newf(ErrorCodeSchemaConflict, format, a...) }

// InvalidConfigf returns a configuration error
func InvalidConfigf(format string, a ...any) error { return Newf(ErrorCodeInvalidConfig, format, a...) }

// EncodeErrf returns a columnar encode error
func EncodeErrf(format string, a ...any) error { return Newf(ErrorCodeWriterEncode, format, a...) }

// IOErrf returns a disk write error
func IOErrf(format string, a ...any) error { return Newf(ErrorCodeWriterIO, format, a...) }

// PanicErrf returns a panic error
func PanicErrf(format string, a ...any) error { return Newf(ErrorCodePanic, format, a...) }

// Unavailablef returns an unavailable error
func Unavailablef(format string, a ...any) error { return Newf(ErrorCodeUnavailable, format, a...) }

// Internalf returns a generic internal error
func Internalf(format string, a ...any) error { return Newf(ErrorCodeUnknown, format, a...) }

// Retry semantics

// Retryable reports whether a flush error is worth retrying.
// Encode failures are not: the fallback encoder handles those instead
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeWriterIO, ErrorCodeUnavailable:
		return true
	default:
		return false
	}
}

// Fatal reports whether the error indicates a packaging/configuration mistake
// that should stop startup rather than be retried or absorbed
func Fatal(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeSchemaConflict, ErrorCodeInvalidConfig:
		return true
	default:
		return false
	}
}
