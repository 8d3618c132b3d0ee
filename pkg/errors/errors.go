// Package errors defines the application error taxonomy. Failures that
// cross a package boundary travel as *AppError carrying an HTTP status,
// a stable machine code and the wrapped cause; ErrorHandler renders
// them and callers branch on the Is* helpers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType classifies an error for logging and envelope rendering
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation        ErrorType = "VALIDATION"
	ErrorTypeNotFound          ErrorType = "NOT_FOUND"
	ErrorTypeConflict          ErrorType = "CONFLICT"
	ErrorTypeInvalidTransition ErrorType = "INVALID_TRANSITION"
	ErrorTypeUnauthorized      ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden         ErrorType = "FORBIDDEN"

	// Application errors
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// Infrastructure errors
	ErrorTypeDatabase ErrorType = "DATABASE"
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError is the canonical application error
type AppError struct {
	Type       ErrorType
	Message    string
	Code       string
	Cause      error
	StackTrace string
	HTTPStatus int
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(t ErrorType, message, code string, status int) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		Code:       code,
		HTTPStatus: status,
		StackTrace: captureStackTrace(),
	}
}

// captureStackTrace records the frames above the constructor
func captureStackTrace() string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return newAppError(ErrorTypeValidation, message, "", http.StatusBadRequest)
}

// NewNotFoundError creates a not found error for the named resource
func NewNotFoundError(resource string) *AppError {
	return newAppError(ErrorTypeNotFound, resource+" not found", "", http.StatusNotFound)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return newAppError(ErrorTypeConflict, message, "", http.StatusConflict)
}

// NewInvalidTransitionError creates an error for a disallowed lifecycle change
func NewInvalidTransitionError(entity, from, to string) *AppError {
	return newAppError(
		ErrorTypeInvalidTransition,
		fmt.Sprintf("cannot transition %s from %s to %s", entity, from, to),
		"INVALID_STATUS_TRANSITION",
		http.StatusConflict,
	)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return newAppError(ErrorTypeInternal, message, "", http.StatusInternalServerError)
}

// NewDatabaseError creates a database error wrapping the driver failure
func NewDatabaseError(operation string, err error) *AppError {
	appErr := newAppError(
		ErrorTypeDatabase,
		fmt.Sprintf("database operation '%s' failed", operation),
		"",
		http.StatusInternalServerError,
	)
	appErr.Cause = err
	return appErr
}

// NewCapabilityError creates an error for a failed external AI capability
// call. Malformed output, refused requests and provider outages all land
// here so callers can tell them apart from local faults.
func NewCapabilityError(capability string, err error) *AppError {
	appErr := newAppError(
		ErrorTypeExternal,
		fmt.Sprintf("external capability '%s' failed", capability),
		"CAPABILITY_FAILED",
		http.StatusBadGateway,
	)
	appErr.Cause = err
	return appErr
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts the AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsInvalidTransition checks if an error is an invalid transition error
func IsInvalidTransition(err error) bool {
	return IsType(err, ErrorTypeInvalidTransition)
}

// IsCapability checks if an error came from an external capability call
func IsCapability(err error) bool {
	return IsType(err, ErrorTypeExternal)
}
