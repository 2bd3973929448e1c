// Package errors maps the engine's tracedata error taxonomy onto HTTP
// status codes for the apiserver and OTLP ingress.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"brokle-tracehub/internal/tracedata"
)

// AppErrorType is the HTTP-facing error category.
type AppErrorType string

const (
	ValidationError    AppErrorType = "VALIDATION_ERROR"
	NotFoundError      AppErrorType = "NOT_FOUND_ERROR"
	ConflictError      AppErrorType = "CONFLICT_ERROR"
	BadRequestError    AppErrorType = "BAD_REQUEST_ERROR"
	InternalError      AppErrorType = "INTERNAL_ERROR"
	ServiceUnavailable AppErrorType = "SERVICE_UNAVAILABLE_ERROR"
	TransportError     AppErrorType = "TRANSPORT_ERROR"
)

// AppError is the structured error returned to HTTP/gRPC callers.
type AppError struct {
	Err        error        `json:"-"`
	Type       AppErrorType `json:"type"`
	Message    string       `json:"message"`
	Details    string       `json:"details,omitempty"`
	StatusCode int          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(errorType AppErrorType, message, details string, err error) *AppError {
	appErr := &AppError{Type: errorType, Message: message, Details: details, Err: err}
	switch errorType {
	case ValidationError, BadRequestError:
		appErr.StatusCode = http.StatusBadRequest
	case NotFoundError:
		appErr.StatusCode = http.StatusNotFound
	case ConflictError:
		appErr.StatusCode = http.StatusConflict
	case ServiceUnavailable:
		appErr.StatusCode = http.StatusServiceUnavailable
	case TransportError:
		appErr.StatusCode = http.StatusBadRequest
	default:
		appErr.StatusCode = http.StatusInternalServerError
	}
	return appErr
}

func NewValidationError(message, details string) *AppError {
	return NewAppError(ValidationError, message, details, nil)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(NotFoundError, resource+" not found", "", nil)
}

func NewBadRequestError(message, details string) *AppError {
	return NewAppError(BadRequestError, message, details, nil)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(InternalError, message, "", err)
}

// FromDomainError maps a *tracedata.Error (the engine's Input/Logical/
// Storage/Transport taxonomy, spec.md §7) onto the HTTP-facing AppError.
// Errors that are not a *tracedata.Error map to InternalError.
func FromDomainError(err error) *AppError {
	if err == nil {
		return nil
	}
	var de *tracedata.Error
	if !errors.As(err, &de) {
		if errors.Is(err, tracedata.ErrNotFound) {
			return NewNotFoundError("entity")
		}
		return NewInternalError(err.Error(), err)
	}
	switch de.Category {
	case tracedata.CategoryInput:
		return NewAppError(ValidationError, de.Message, de.Details, de)
	case tracedata.CategoryLogical:
		return NewAppError(ConflictError, de.Message, de.Details, de)
	case tracedata.CategoryStorage:
		return NewAppError(InternalError, de.Message, de.Details, de)
	case tracedata.CategoryTransport:
		return NewAppError(TransportError, de.Message, de.Details, de)
	default:
		return NewInternalError(de.Message, de)
	}
}

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func GetStatusCode(err error) int {
	if appErr, ok := IsAppError(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Type == NotFoundError
	}
	return false
}
