package apierror

import (
	"encoding/json"
	"net/http"
)

// Error represents a structured API error response.
type Error struct {
	StatusCode int                    `json:"-"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// WithMeta attaches machine-readable context (e.g. quota numbers) so
// clients can react without parsing the message.
func (e *Error) WithMeta(meta map[string]interface{}) *Error {
	e.Meta = meta
	return e
}

// ToJSON converts the error to JSON bytes.
func (e *Error) ToJSON() []byte {
	errBody := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Meta) > 0 {
		errBody["meta"] = e.Meta
	}

	response := map[string]interface{}{
		"success": false,
		"error":   errBody,
	}

	data, _ := json.Marshal(response)
	return data
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
	}
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return &Error{
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    message,
	}
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *Error {
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// UnprocessableImage creates a 422 error for captures that cannot be
// decoded. Distinguishable from transient failures: the caller must
// re-capture, not retry.
func UnprocessableImage(message string) *Error {
	if message == "" {
		message = "Image could not be decoded"
	}
	return &Error{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "IMAGE_DECODE_FAILED",
		Message:    message,
	}
}

// QuotaExceeded creates a 429 error. Distinguishable from generic
// failures so clients can present an upgrade or grace-unlock path
// instead of a retry prompt.
func QuotaExceeded(message string) *Error {
	if message == "" {
		message = "Monthly upload limit reached"
	}
	return &Error{
		StatusCode: http.StatusTooManyRequests,
		Code:       "QUOTA_EXCEEDED",
		Message:    message,
	}
}

// InternalError creates a 500 Internal Server Error.
func InternalError(message string) *Error {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
	}
}

// ServiceUnavailable creates a 503 Service Unavailable error.
func ServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    message,
	}
}
