package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates a missing or unknown principal
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeForbidden indicates the principal may not act on the resource
	ErrorTypeForbidden ErrorType = "FORBIDDEN"

	// ErrorTypeNotPending indicates a state transition on a record that already left pending
	ErrorTypeNotPending ErrorType = "NOT_PENDING"

	// ErrorTypeQuotaExceeded indicates the daily reading cap was reached
	ErrorTypeQuotaExceeded ErrorType = "QUOTA_EXCEEDED"

	// ErrorTypeRateLimited indicates the caller exceeded a request budget
	ErrorTypeRateLimited ErrorType = "RATE_LIMITED"

	// ErrorTypeInsufficientData indicates there is not enough clinical data to proceed
	ErrorTypeInsufficientData ErrorType = "INSUFFICIENT_DATA"

	// ErrorTypeProviderUnavailable indicates no AI transport could be reached
	ErrorTypeProviderUnavailable ErrorType = "PROVIDER_UNAVAILABLE"

	// ErrorTypeGenerationFailed indicates the AI answer could not be turned into a result
	ErrorTypeGenerationFailed ErrorType = "GENERATION_FAILED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	// Details carries structured context for rendering, e.g. todayCount and limit.
	Details map[string]interface{}
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

// WithDetail attaches a structured detail and returns the same error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// As extracts an *AppError from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type
func IsType(err error, t ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
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

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeForbidden,
		Message: message,
	}
}

// NewNotPendingError creates a new not-pending error
func NewNotPendingError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotPending,
		Message: message,
	}
}

// NewQuotaExceededError creates a quota error carrying the observed count and the cap
func NewQuotaExceededError(count, limit int) *AppError {
	return (&AppError{
		Type:    ErrorTypeQuotaExceeded,
		Message: fmt.Sprintf("daily reading limit reached (%d/%d)", count, limit),
	}).WithDetail("todayCount", count).WithDetail("limit", limit)
}

// NewRateLimitedError creates a rate limit error carrying the retry delay in seconds
func NewRateLimitedError(message string, retryAfterSeconds int) *AppError {
	return (&AppError{
		Type:    ErrorTypeRateLimited,
		Message: message,
	}).WithDetail("retryAfterSeconds", retryAfterSeconds)
}

// NewInsufficientDataError creates a new insufficient data error
func NewInsufficientDataError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInsufficientData,
		Message: message,
	}
}

// NewProviderUnavailableError creates a new provider unavailable error
func NewProviderUnavailableError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeProviderUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewGenerationFailedError creates a new generation failed error
func NewGenerationFailedError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeGenerationFailed,
		Message: message,
		Err:     err,
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
