package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// Report-builder specific error codes.
const (
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrModelNotFound   = "MODEL_NOT_FOUND"
	ErrNoReportData    = "NO_REPORT_DATA"
	ErrInvalidSettings = "INVALID_SETTINGS"
	ErrImportFormat    = "IMPORT_FORMAT_ERROR"
)

// ErrorEnvelope is the standard error response envelope returned by the service.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewSettingsError returns an INVALID_SETTINGS error carrying the accumulated
// human-readable validation messages joined into one message.
func NewSettingsError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidSettings, Message: msg}
}

// NewSessionNotFoundError returns a SESSION_NOT_FOUND error.
func NewSessionNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrSessionNotFound, Message: msg}
}

// NewModelNotFoundError returns a MODEL_NOT_FOUND error.
func NewModelNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrModelNotFound, Message: msg}
}

// NewNoReportDataError returns a NO_REPORT_DATA error.
func NewNoReportDataError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNoReportData,
		Message: "No report data to export. Execute the report first.",
	}
}

// NewImportFormatError returns an IMPORT_FORMAT_ERROR with a descriptive message.
func NewImportFormatError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrImportFormat, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The backend service is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The backend service did not respond in time",
	}
}
