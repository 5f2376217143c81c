package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Client errors (4xx equivalent)
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeInvalidInput ErrorType = "INVALID_INPUT"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeRateLimited  ErrorType = "RATE_LIMITED"
	ErrorTypePrecondition ErrorType = "PRECONDITION_FAILED"

	// Server errors (5xx equivalent)
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeBadGateway  ErrorType = "BAD_GATEWAY"

	// Business logic errors
	ErrorTypeBusinessRule ErrorType = "BUSINESS_RULE"
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeDuplicate    ErrorType = "DUPLICATE"
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StatusCode int                    `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates a new error with the HTTP status implied by its type
func New(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:       errorType,
		Code:       code,
		Message:    message,
		StatusCode: statusFor(errorType),
	}
}

func statusFor(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeInvalidInput, ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeConflict, ErrorTypeDuplicate:
		return http.StatusConflict
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case ErrorTypePrecondition:
		return http.StatusPreconditionFailed
	case ErrorTypeBusinessRule:
		return http.StatusUnprocessableEntity
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors
func NotFound(resource string, id interface{}) *Error {
	return New(ErrorTypeNotFound, "RESOURCE_NOT_FOUND",
		fmt.Sprintf("%s not found", resource)).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func InvalidInput(field string, reason string) *Error {
	return New(ErrorTypeInvalidInput, "INVALID_INPUT",
		fmt.Sprintf("Invalid input for field '%s': %s", field, reason)).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func Unauthorized(reason string) *Error {
	return New(ErrorTypeUnauthorized, "UNAUTHORIZED", reason)
}

func Forbidden(resource string, action string) *Error {
	return New(ErrorTypeForbidden, "FORBIDDEN",
		fmt.Sprintf("Forbidden: cannot %s %s", action, resource)).
		WithDetails("resource", resource).
		WithDetails("action", action)
}

func Conflict(resource string, reason string) *Error {
	return New(ErrorTypeConflict, "CONFLICT",
		fmt.Sprintf("Conflict with %s: %s", resource, reason)).
		WithDetails("resource", resource)
}

func Internal(message string) *Error {
	return New(ErrorTypeInternal, "INTERNAL_ERROR", message)
}

func Timeout(operation string) *Error {
	return New(ErrorTypeTimeout, "TIMEOUT",
		fmt.Sprintf("Operation '%s' timed out", operation)).
		WithDetails("operation", operation)
}

func Unavailable(dependency string) *Error {
	return New(ErrorTypeUnavailable, "UNAVAILABLE",
		fmt.Sprintf("%s is unavailable", dependency)).
		WithDetails("dependency", dependency)
}

func BusinessRule(code, message string) *Error {
	return New(ErrorTypeBusinessRule, code, message)
}

// As extracts an *Error anywhere in the chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if e, ok := As(err); ok {
		return e.Type == errorType
	}
	return false
}

// GetCode returns the error code if it's our error type
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return "UNKNOWN"
}

type errorEnvelope struct {
	Error *Error `json:"error"`
}

// WriteJSON renders err as {"error": {...}}; errors that are not *Error become 500s
func WriteJSON(w http.ResponseWriter, err error) {
	e, ok := As(err)
	if !ok {
		e = Internal("internal server error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: e})
}
