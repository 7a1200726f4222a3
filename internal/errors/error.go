package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for control flow.
type Kind string

const (
	KindAuthRequired  Kind = "auth_required"
	KindForbidden     Kind = "forbidden"
	KindRemoteFailure Kind = "remote_failure"
	KindBusy          Kind = "busy"
	KindValidation    Kind = "validation"
	KindConfig        Kind = "config"
)

// Sentinel errors for errors.Is. They match any *Error of the same kind.
var (
	ErrAuthRequired  = &Error{Kind: KindAuthRequired, Message: "authentication required"}
	ErrForbidden     = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrRemoteFailure = &Error{Kind: KindRemoteFailure, Message: "remote failure"}
	ErrBusy          = &Error{Kind: KindBusy, Message: "mutation already pending"}
)

// Error is a structured error with a registered code, a kind and the remote
// context it was produced in.
type Error struct {
	// Code is a unique error identifier (e.g., "A101").
	Code string

	// Kind is the control-flow classification.
	Kind Kind

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// ServerCode is the backend's own error code from the envelope.
	ServerCode string

	// ServerMessage is the backend's human-readable message from the envelope.
	ServerMessage string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.ServerMessage != "" {
		msg += ": " + e.ServerMessage
	} else if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	// Sentinels carry no code; compare by kind only.
	return t.Code == "" && t.Kind != "" && t.Kind == e.Kind
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithStatus records the HTTP status code.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithServer records the backend's envelope code and message.
func (e *Error) WithServer(code, message string) *Error {
	e.ServerCode = code
	e.ServerMessage = message
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Kind:    KindRemoteFailure,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:    code,
		Kind:    template.Kind,
		Message: template.Message,
		Detail:  template.Detail,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error.
// An *Error anywhere in the chain is returned as is.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Status
	}
	return 0
}
