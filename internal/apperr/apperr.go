// Package apperr defines the coded errors shared by the identity, content,
// catalog and notification layers, and their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

type Code string

const (
	CodeInvalidArgument Code = "InvalidArgument"
	CodeUnauthorized    Code = "Unauthorized"
	CodeForbidden       Code = "Forbidden"
	CodeNotFound        Code = "NotFound"
	CodeConflict        Code = "Conflict"
	CodeStorageFailure  Code = "StorageFailure"
)

type Error struct {
	Code  Code
	msg   string
	cause error
}

func (e *Error) Error() string {
	return e.msg
}

// Trace returns the message followed by the chain of causes.
func (e *Error) Trace() string {
	b := &strings.Builder{}
	b.WriteString(e.msg)
	err := errors.Unwrap(e)
	for err != nil {
		b.WriteString("\nCaused by: ")
		b.WriteString(err.Error())
		err = errors.Unwrap(err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) WithCause(c error) *Error {
	e.cause = c
	return e
}

func InvalidArgument(m string) *Error {
	return &Error{Code: CodeInvalidArgument, msg: m}
}

func Unauthorized(m string) *Error {
	return &Error{Code: CodeUnauthorized, msg: m}
}

func Forbidden(m string) *Error {
	return &Error{Code: CodeForbidden, msg: m}
}

func NotFound(m string) *Error {
	return &Error{Code: CodeNotFound, msg: m}
}

func Conflict(m string) *Error {
	return &Error{Code: CodeConflict, msg: m}
}

func StorageFailure(m string) *Error {
	return &Error{Code: CodeStorageFailure, msg: m}
}

// CodeOf returns the code of the first *Error in err's chain. Errors that
// carry no code are treated as storage failures.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeStorageFailure
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// StatusCode returns the http response status code associated with the error.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show to a client. Storage failures
// never expose their text.
func (e *Error) PublicMessage() string {
	if e.Code == CodeStorageFailure {
		return "internal server error"
	}
	return e.msg
}
