// Package errors defines the error taxonomy used across the heap dump
// retention analyzer.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeMalformedInput  = "MALFORMED_INPUT"
	CodeUnknownRef      = "UNKNOWN_REFERENCE"
	CodeDuplicateObject = "DUPLICATE_OBJECT"
	CodeOutputFailure   = "OUTPUT_FAILURE"
	CodeBadFlag         = "BAD_FLAG"
	CodeUnknownReroot   = "UNKNOWN_REROOT"
	CodeUnknown         = "UNKNOWN_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Sentinel error values, one per taxonomy entry. errors.Is checks against
// these only compare codes (see AppError.Is), so any wrapped instance with
// the same code matches.
var (
	ErrMalformedInput  = New(CodeMalformedInput, "malformed input")
	ErrUnknownRef      = New(CodeUnknownRef, "unknown reference")
	ErrDuplicateObject = New(CodeDuplicateObject, "duplicate object")
	ErrOutputFailure   = New(CodeOutputFailure, "output failure")
	ErrBadFlag         = New(CodeBadFlag, "bad flag")
	ErrUnknownReroot   = New(CodeUnknownReroot, "unknown reroot address")
)

// IsMalformedInput reports whether err is a MalformedInput error.
func IsMalformedInput(err error) bool { return errors.Is(err, ErrMalformedInput) }

// IsOutputFailure reports whether err is an OutputFailure error.
func IsOutputFailure(err error) bool { return errors.Is(err, ErrOutputFailure) }

// IsBadFlag reports whether err is a BadFlag error.
func IsBadFlag(err error) bool { return errors.Is(err, ErrBadFlag) }

// IsUnknownReroot reports whether err is an UnknownReroot error.
func IsUnknownReroot(err error) bool { return errors.Is(err, ErrUnknownReroot) }

// GetErrorCode extracts the error code from an error, or CodeUnknown.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// ExitCode maps an error to the process exit code the CLI should use.
// MalformedInput / OutputFailure / UnknownReroot exit 1; BadFlag exits 2;
// any other error also exits 1, and nil exits 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetErrorCode(err) {
	case CodeBadFlag:
		return 2
	case CodeMalformedInput, CodeOutputFailure, CodeUnknownReroot:
		return 1
	default:
		return 1
	}
}
