package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model =====

type Code string

const (
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodePolicy            Code = "POLICY_VIOLATION"
	CodeConflict          Code = "CONFLICT"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeInternal          Code = "INTERNAL"
)

// Error is the recoverable error every service returns to the HTTP surface.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func Invalid(msg string) *Error  { return &Error{Code: CodeInvalidArgument, Message: msg} }
func NotFound(msg string) *Error { return &Error{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) *Error { return &Error{Code: CodeConflict, Message: msg} }
func Policy(msg string) *Error   { return &Error{Code: CodePolicy, Message: msg} }
func Internal(msg string) *Error { return &Error{Code: CodeInternal, Message: msg} }

func Unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Code: CodeForbidden, Message: msg} }

// InsufficientStock reports how many units were actually available.
func InsufficientStock(available int) *Error {
	return &Error{
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock: only %d unit(s) available", available),
	}
}

func Invalidf(format string, args ...any) *Error {
	return Invalid(fmt.Sprintf(format, args...))
}

// CodeOf returns CodeInternal for anything that is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInsufficientStock:
		return http.StatusConflict
	case CodePolicy:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
