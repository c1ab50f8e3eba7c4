// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sheetviz/backend/internal/access"
	"github.com/sheetviz/backend/internal/chart"
	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/render"
	"github.com/sheetviz/backend/internal/scene"
	"github.com/sheetviz/backend/internal/state"
	"github.com/sheetviz/backend/internal/storage"
	"github.com/sheetviz/backend/internal/upload"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewUnsupportedMediaError creates a 415 error for rejected file formats
func NewUnsupportedMediaError(message string) *APIError {
	return &APIError{
		Status:  http.StatusUnsupportedMediaType,
		Code:    "INVALID_FORMAT",
		Message: message,
	}
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewPayloadTooLargeError creates a 413 error
func NewPayloadTooLargeError(message string) *APIError {
	return &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "PAYLOAD_TOO_LARGE",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// FromDomainError maps errors returned by the domain packages onto API errors.
func FromDomainError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *chart.ValidationError
	var rerr *scene.RenderResourceError
	switch {
	case errors.Is(err, upload.ErrInvalidFormat):
		return NewUnsupportedMediaError("Please upload a valid Excel file (.xlsx or .xls)")
	case errors.Is(err, upload.ErrUploadInProgress), errors.Is(err, state.ErrGenerationInProgress):
		return NewConflictError(err.Error())
	case errors.Is(err, upload.ErrClosed), errors.Is(err, chart.ErrCanceled):
		return NewServiceUnavailableError(err.Error())
	case errors.As(err, &verr):
		if verr.Conflict {
			return NewConflictError(verr.Error())
		}
		e := NewValidationError(verr.Field)
		if verr.Field == "" {
			e = NewBadRequestError(verr.Reason, nil)
		} else {
			e.Details = verr.Reason
		}
		return e
	case errors.Is(err, chart.ErrChartNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, access.ErrUnknownUser):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, storage.ErrTooLarge):
		return NewPayloadTooLargeError(err.Error())
	case errors.Is(err, render.ErrInvalidSize):
		return NewBadRequestError("invalid image size", err)
	case errors.As(err, &rerr):
		if errors.Is(err, scene.ErrContextReleased) {
			return NewServiceUnavailableError(rerr.Error())
		}
		return NewInternalError("render resources unavailable", err)
	}
	return NewInternalError("An unexpected error occurred", err)
}

// NewErrorHandler returns an echo error handler writing APIError bodies.
// Details of unexpected errors are only included when showDetails is set.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(log, dev)
func NewErrorHandler(log logger.Logger, showDetails bool) echo.HTTPErrorHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
			}
			if showDetails {
				apiErr.Details = err.Error()
			}
		}

		if apiErr.Status >= http.StatusInternalServerError {
			log.Error("api", "request failed", map[string]interface{}{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": apiErr.Status,
				"error":  err.Error(),
			})
		}

		if c.Request().Method == http.MethodHead {
			c.NoContent(apiErr.Status)
			return
		}
		c.JSON(apiErr.Status, apiErr)
	}
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
