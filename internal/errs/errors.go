// Package errs classifies failures into the kinds clients can see.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
	KindConflict         Kind = "CONFLICT"
	KindNotFound         Kind = "NOT_FOUND"
	KindInternal         Kind = "INTERNAL"
)

const internalMessage = "internal server error"

// FieldError describes one invalid payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Unauthenticated(msg string) error { return New(KindUnauthenticated, msg) }

func Forbidden(msg string) error { return New(KindPermissionDenied, msg) }

func Invalid(msg string) error { return New(KindInvalidArgument, msg) }

// InvalidFields builds a validation failure carrying per-field details.
func InvalidFields(msg string, fields []FieldError) error {
	return &Error{Kind: KindInvalidArgument, Message: msg, Fields: fields}
}

func Conflict(msg string) error { return New(KindConflict, msg) }

func NotFound(msg string) error { return New(KindNotFound, msg) }

func Internal(msg string, cause error) error { return Wrap(KindInternal, msg, cause) }

// KindOf classifies err. Anything that is not an *Error is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Public returns the message and field details that are safe to show to a
// client. Internal failures never leak their detail.
func Public(err error) (string, []FieldError) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return internalMessage, nil
	}
	return e.Message, e.Fields
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
