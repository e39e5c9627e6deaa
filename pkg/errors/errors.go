package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a request raced another on the same session
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeModelUnavailable means the model path is not configured or the call failed
	ErrorTypeModelUnavailable ErrorType = "MODEL_UNAVAILABLE"

	// ErrorTypeMalformedModelResponse means the model answered but not with the JSON contract
	ErrorTypeMalformedModelResponse ErrorType = "MALFORMED_MODEL_RESPONSE"
)

var (
	// ErrModelUnavailable matches any MODEL_UNAVAILABLE AppError via errors.Is.
	ErrModelUnavailable = &AppError{Type: ErrorTypeModelUnavailable, Message: "model extraction unavailable"}

	// ErrMalformedModelResponse matches any MALFORMED_MODEL_RESPONSE AppError via errors.Is.
	ErrMalformedModelResponse = &AppError{Type: ErrorTypeMalformedModelResponse, Message: "malformed model response"}
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError of the same type.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewModelUnavailableError wraps a missing-configuration or transport failure on the model path.
func NewModelUnavailableError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeModelUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewMalformedModelResponseError wraps a model response that failed the strict JSON parse.
func NewMalformedModelResponseError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeMalformedModelResponse,
		Message: message,
		Err:     err,
	}
}
