package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies procedure failures independent of transport.
type Code string

const (
	CodeBadRequest       Code = "BAD_REQUEST"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeMethodNotAllowed Code = "METHOD_NOT_SUPPORTED"
	CodeTooManyRequests  Code = "TOO_MANY_REQUESTS"
	CodeInternal         Code = "INTERNAL_SERVER_ERROR"
)

// Error is the only error type procedures surface to callers. Message is safe to expose;
// the wrapped cause is for logs and errors.Is/As only.
type Error struct {
	Code        Code
	Message     string
	FieldErrors map[string][]string
	cause       error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the transport status for the error code.
func (e *Error) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// Unauthorized reports a missing or invalid session. It never carries detail.
func Unauthorized() *Error {
	return &Error{Code: CodeUnauthorized, Message: "UNAUTHORIZED"}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// MethodNotAllowed reports a query invoked as a mutation or the reverse.
func MethodNotAllowed(message string) *Error {
	return &Error{Code: CodeMethodNotAllowed, Message: message}
}

// Validation reports malformed input with per-field messages.
func Validation(fieldErrors map[string][]string) *Error {
	return &Error{Code: CodeBadRequest, Message: "invalid input", FieldErrors: fieldErrors}
}

// TooManyRequests reports a throttled caller.
func TooManyRequests() *Error {
	return &Error{Code: CodeTooManyRequests, Message: "too many requests"}
}

// Internal hides cause behind a generic message.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", cause: cause}
}

// FromError converts any error into an *Error, treating unknown errors as internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return Internal(err)
}

// HTTPStatus maps an error code onto an HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
