// Package apperr classifies errors so the HTTP layer can map them to status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the classification of an error for response handling.
type Kind int

const (
	// KindUnexpected is any error that carries no classification.
	KindUnexpected Kind = iota
	// KindUnavailable means the store connection is absent or timed out.
	KindUnavailable
	// KindValidation means the request was malformed or a value failed coercion.
	KindValidation
	// KindNotFound means a referenced id or slot does not resolve.
	KindNotFound
	// KindConflict means a uniqueness constraint was violated.
	KindConflict
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// ErrStoreUnavailable is returned by every store operation while no connection exists.
var ErrStoreUnavailable = errors.New("Conexión a la base de datos no disponible")

// Error wraps an error with its classification.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a KindValidation error with a formatted, caller-facing message.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error wrapping err.
func Conflict(err error, format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...), Err: err}
}

// Unavailable marks err as a store availability failure. The message stays the generic one
// so connection details are not echoed to clients.
func Unavailable(err error) error {
	if err == nil {
		err = ErrStoreUnavailable
	}
	return &Error{Kind: KindUnavailable, Message: ErrStoreUnavailable.Error(), Err: err}
}

// Prefix returns err with context prepended to its message, keeping its classification.
func Prefix(err error, format string, args ...any) error {
	prefix := fmt.Sprintf(format, args...)
	var ae *Error
	if errors.As(err, &ae) {
		return &Error{Kind: ae.Kind, Message: prefix + ae.Error(), Err: ae.Err}
	}
	return fmt.Errorf("%s%w", prefix, err)
}

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnexpected
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return KindUnavailable
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
