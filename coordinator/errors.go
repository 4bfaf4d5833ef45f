package coordinator

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindInvalidInput    ErrorKind = "invalid_input"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindUpstreamFailure ErrorKind = "upstream_failure"
)

// Error is the caller-facing error of the coordination engine. The kind
// classifies the failure, the message carries enough detail to act on it.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

func NotFoundf(cause error, format string, args ...interface{}) *Error {
	return newError(KindNotFound, cause, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return newError(KindConflict, nil, format, args...)
}

func InvalidInputf(cause error, format string, args ...interface{}) *Error {
	return newError(KindInvalidInput, cause, format, args...)
}

func Unauthorizedf(cause error, format string, args ...interface{}) *Error {
	return newError(KindUnauthorized, cause, format, args...)
}

func UpstreamFailuref(cause error, format string, args ...interface{}) *Error {
	return newError(KindUpstreamFailure, cause, format, args...)
}

// KindOf classifies any error, returning an empty kind for errors that did
// not originate from the engine.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
