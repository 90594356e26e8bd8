package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the core services
type ErrorKind string

const (
	ErrValidation      ErrorKind = "VALIDATION"
	ErrDuplicateCode   ErrorKind = "DUPLICATE_CODE"
	ErrInvalidParent   ErrorKind = "INVALID_PARENT"
	ErrHasChildren     ErrorKind = "HAS_CHILDREN"
	ErrUnknownTemplate ErrorKind = "UNKNOWN_TEMPLATE"
	ErrNotFound        ErrorKind = "NOT_FOUND"
	ErrInternal        ErrorKind = "INTERNAL"
)

// Error is the error type returned across service boundaries.
// TraceID is only populated for INTERNAL failures.
type Error struct {
	Kind    ErrorKind
	Message string
	TraceID string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.TraceID != "" {
		msg += " (trace " + e.TraceID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, &Error{Kind: ErrNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func DuplicateCode(kind NodeKind, code string) *Error {
	return &Error{Kind: ErrDuplicateCode, Message: fmt.Sprintf("%s code %q already exists", kind, code)}
}

func InvalidParent(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInvalidParent, Message: fmt.Sprintf(format, args...)}
}

func HasChildren(kind NodeKind, id string) *Error {
	return &Error{Kind: ErrHasChildren, Message: fmt.Sprintf("%s %s has children", kind, id)}
}

func UnknownTemplate(id string) *Error {
	return &Error{Kind: ErrUnknownTemplate, Message: fmt.Sprintf("unknown template %q", id)}
}

func NotFound(what, id string) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func Internal(traceID string, err error) *Error {
	return &Error{Kind: ErrInternal, Message: "unexpected failure", TraceID: traceID, Err: err}
}

// KindOf returns the kind of err, or INTERNAL for errors not raised by the core.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
