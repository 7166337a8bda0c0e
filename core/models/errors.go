package models

import "errors"

// Code is a stable machine-readable error code surfaced to callers.
type Code string

const (
	CodePricingUnavailable Code = "pricing_unavailable"
	CodeInvalidRequest     Code = "invalid_request"
	CodeSolverFailure      Code = "solver_failure"
	CodeRunNotFound        Code = "run_not_found"
	CodeInternal           Code = "internal"
)

// Error pairs a stable code with a human message. Provider response bodies
// are never embedded in the message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// NewError creates a coded error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a coded error preserving the underlying cause.
func WrapError(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the stable code from an error chain.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}
