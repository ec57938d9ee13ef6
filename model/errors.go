package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures surfaced at the request boundary
type ErrorCode string

const (
	CodeUnauthenticated    ErrorCode = "unauthenticated"
	CodeInvalidArgument    ErrorCode = "invalid-argument"
	CodePermissionDenied   ErrorCode = "permission-denied"
	CodeNotFound           ErrorCode = "not-found"
	CodeFailedPrecondition ErrorCode = "failed-precondition"
	CodeResourceExhausted  ErrorCode = "resource-exhausted"
	CodeInternal           ErrorCode = "internal"
)

// Error is a classified error returned by the chat and billing layers
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a classified error around a cause
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ErrorCodeOf returns the code of a classified error, or CodeInternal
func ErrorCodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// PublicMessage returns the message safe to show to a caller
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
