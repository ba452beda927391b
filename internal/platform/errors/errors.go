// Package errors provides coded application errors shared by every layer of
// the service. Transports translate the code into a status; callers inspect
// it with CodeOf.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for transport mapping.
type Code string

const (
	ErrCodeInvalidInput           Code = "INVALID_INPUT"
	ErrCodeNotFound               Code = "NOT_FOUND"
	ErrCodeConflict               Code = "CONFLICT"
	ErrCodePreconditionFailed     Code = "PRECONDITION_FAILED"
	ErrCodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	ErrCodeUnauthorized           Code = "UNAUTHORIZED"
	ErrCodeInternal               Code = "INTERNAL"
)

// AppError is an error carrying a Code and optional structured details.
type AppError struct {
	Code    Code
	Message string
	Field   string
	Details map[string]interface{}
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

// ErrorCode reports the classification of the error.
func (e *AppError) ErrorCode() Code { return e.Code }

// New returns an AppError with the given code and message.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap annotates err with a code and message. Wrapping nil returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resource, id),
		Details: map[string]interface{}{"resource": resource, "id": id},
	}
}

// InvalidInput reports a request field that failed validation.
func InvalidInput(field, message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// Coder is implemented by every error that carries a classification.
type Coder interface {
	ErrorCode() Code
}

// CodeOf returns the code of the first coded error in err's chain, or
// ErrCodeInternal when none is present.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var c Coder
	if stderrors.As(err, &c) {
		return c.ErrorCode()
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Is and As re-export the standard library helpers so callers only need one
// errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }
