// Package apperr classifies errors that cross the service boundary so that
// transports can map them to status codes without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of an application error.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindPermission     Kind = "permission"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindRateLimited    Kind = "rate_limited"
	KindProvider       Kind = "provider"
	KindInternal       Kind = "internal"
)

// Error is an error tagged with a Kind and a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind and message, so package-level
// sentinels can be compared with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error     { return New(KindValidation, msg) }
func Permission(msg string) *Error     { return New(KindPermission, msg) }
func Authentication(msg string) *Error { return New(KindAuthentication, msg) }
func NotFound(msg string) *Error       { return New(KindNotFound, msg) }
func Conflict(msg string) *Error       { return New(KindConflict, msg) }
func RateLimited(msg string) *Error    { return New(KindRateLimited, msg) }

// Provider wraps a failure of an external service (payments, messaging).
func Provider(msg string, err error) *Error { return Wrap(KindProvider, msg, err) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message of err, or fallback when err
// carries no *Error.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
