package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Code is the machine-readable error_code carried by an APIError
type Code string

const (
	CodeInvalidParameter Code = "INVALID_PARAMETER"
	CodeNotFound         Code = "NOT_FOUND"
	CodeNoData           Code = "NO_DATA"
	CodeRateLimited      Code = "RATE_LIMIT_EXCEEDED"
)

// problemTypes maps each code to its problem type URI
var problemTypes = map[Code]string{
	CodeInvalidParameter: TypeValidation,
	CodeNotFound:         TypeNotFound,
	CodeNoData:           TypeNoData,
	CodeRateLimited:      TypeRateLimit,
}

// APIError is a status API failure with a fixed status and code
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  Code        `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ErrRateLimitExceeded is returned to clients over their request budget
var ErrRateLimitExceeded = &APIError{
	StatusCode: http.StatusTooManyRequests,
	ErrorCode:  CodeRateLimited,
	Message:    "Rate limit exceeded",
}

// NotFoundError reports a resource that is not served, e.g. a disabled widget
func NotFoundError(resource string) *APIError {
	return &APIError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  CodeNotFound,
		Message:    resource + " not found",
		Details:    resource,
	}
}

// NoDataError reports a widget that has not received any data yet
func NoDataError(widget string) *APIError {
	return &APIError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  CodeNoData,
		Message:    widget + " has not received data yet",
		Details:    widget,
	}
}

// InvalidParameterError reports a rejected request parameter
func InvalidParameterError(name string, err error) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		ErrorCode:  CodeInvalidParameter,
		Message:    "invalid " + name,
		Details:    err.Error(),
	}
}
