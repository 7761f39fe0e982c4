// Package apperr provides structured application errors with HTTP status mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the category of an error, used for response formatting and metrics.
type Type string

const (
	TypeValidation Type = "validation"
	TypeNotFound   Type = "not_found"
	TypeConflict   Type = "conflict"
	TypeInternal   Type = "internal"
	TypeExternal   Type = "external"
)

// Error is a structured error with a type, a client-safe message and an
// optional cause that is never sent to clients.
type Error struct {
	Type    Type
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error type to a response status code.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithContext attaches a field that is included in the client response.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Response is the JSON body written for a failed request.
type Response struct {
	Error   string         `json:"error"`
	Type    Type           `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() Response {
	return Response{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Type: TypeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Type: TypeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Type: TypeConflict, Message: fmt.Sprintf(format, args...)}
}

func Internal(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

func External(message string, cause error) *Error {
	return &Error{Type: TypeExternal, Message: message, Cause: cause}
}

// As converts any error into a structured Error. Errors that are not
// already structured become internal errors with a generic message.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal server error", err)
}

// Is reports whether err carries a structured error of type t.
func Is(err error, t Type) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}
