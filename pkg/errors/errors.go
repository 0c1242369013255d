package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies the failures a run can hit
type ErrorType string

const (
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeFetch         ErrorType = "fetch"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeLengthUnknown ErrorType = "length_unknown"
	ErrorTypeIO            ErrorType = "io"
)

// Error carries the failure type alongside the message. Code holds the HTTP
// status for fetch errors and is zero otherwise.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s error (status %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
		}
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without an underlying cause
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a type and message to an underlying error
func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// NewFetch creates a fetch error carrying the HTTP status code
func NewFetch(message string, code int) *Error {
	return &Error{Type: ErrorTypeFetch, Message: message, Code: code}
}

// IsType reports whether err (or anything it wraps) is a typed error of t
func IsType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsNotFound reports whether err is a resolution failure
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConfig reports whether err is a configuration failure
func IsConfig(err error) bool {
	return IsType(err, ErrorTypeConfig)
}
