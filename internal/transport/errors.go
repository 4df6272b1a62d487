package transport

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of transport errors
type ErrorType int

const (
	ErrorTypeUnknown   ErrorType = iota
	ErrorTypeNetwork             // Request never reached the server or the connection broke
	ErrorTypeAPI                 // Non-success status or a success:false payload
	ErrorTypeTimeout             // Request exceeded its time bound
	ErrorTypeCancelled           // Cancellation handle was triggered
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeAPI:
		return "api"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error represents a structured transport error
type Error struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`        // Endpoint-specific error code
	StatusCode int       `json:"status_code"` // HTTP status, 0 when no response was received
	Message    string    `json:"message"`     // Human-readable error message
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Code != "" {
		return e.Message + " (code: " + e.Code + ")"
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error of the same type
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

// NewError creates a new Error
func NewError(errorType ErrorType, code, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// Predefined error constructors
func NewNetworkError(message string, cause error) *Error {
	return NewError(ErrorTypeNetwork, "", message, true, cause)
}

func NewAPIError(code, message string, cause error) *Error {
	return NewError(ErrorTypeAPI, code, message, false, cause)
}

// NewStatusError builds an API error for a non-success HTTP status.
func NewStatusError(statusCode int, message string) *Error {
	err := NewAPIError(fmt.Sprintf("%d", statusCode), message, nil)
	err.StatusCode = statusCode
	return err
}

func NewTimeoutError(message string, cause error) *Error {
	return NewError(ErrorTypeTimeout, "", message, false, cause)
}

func NewCancelledError(message string, cause error) *Error {
	return NewError(ErrorTypeCancelled, "", message, false, cause)
}

// IsRetryable checks if the error is retryable
func IsRetryable(err error) bool {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error
func GetErrorType(err error) ErrorType {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Type
	}
	return ErrorTypeUnknown
}

// IsCancelled reports whether err is the outcome of a triggered cancellation handle.
func IsCancelled(err error) bool {
	return GetErrorType(err) == ErrorTypeCancelled
}

func IsTimeout(err error) bool {
	return GetErrorType(err) == ErrorTypeTimeout
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.StatusCode
	}
	return 0
}

// Message returns the human-readable message of err without the code suffix.
func Message(err error) string {
	var tErr *Error
	if errors.As(err, &tErr) && tErr.Message != "" {
		return tErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
