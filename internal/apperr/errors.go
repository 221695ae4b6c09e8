// Package apperr defines the error taxonomy shared by the cart and order
// services and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindConflict          Kind = "conflict"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidTransition Kind = "invalid_transition"
	KindPriceMismatch     Kind = "price_mismatch"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

// Error carries a kind, the failing operation, a client safe message and
// optional structured detail for display.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Detail  map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an error of the given kind.
func E(kind Kind, op, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

// WithDetail attaches structured detail and returns the receiver.
func (e *Error) WithDetail(detail map[string]any) *Error {
	e.Detail = detail
	return e
}

func Validation(op, message string) *Error { return E(KindValidation, op, message) }
func NotFound(op, message string) *Error   { return E(KindNotFound, op, message) }
func Forbidden(op, message string) *Error  { return E(KindForbidden, op, message) }
func Conflict(op, message string) *Error   { return E(KindConflict, op, message) }

// Internal wraps a collaborator failure. The cause is kept for logs but never
// shown to clients.
func Internal(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInsufficientStock, KindInvalidTransition, KindPriceMismatch, KindUnavailable:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
