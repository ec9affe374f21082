// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the report-builder API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrForbidden:          http.StatusForbidden,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrConflict:           http.StatusConflict,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendTimeout:     http.StatusGatewayTimeout,
	model.ErrSessionNotFound:    http.StatusNotFound,
	model.ErrModelNotFound:      http.StatusNotFound,
	model.ErrNoReportData:       http.StatusConflict,
	model.ErrInvalidSettings:    http.StatusUnprocessableEntity,
	model.ErrImportFormat:       http.StatusBadRequest,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// dataResponse is the envelope for operations that mutate session state: the
// payload plus every notification the operation produced.
type dataResponse struct {
	Data          any                  `json:"data"`
	Notifications []model.Notification `json:"notifications"`
}

// WriteData writes {"data": ..., "notifications": [...]}. A nil notification
// slice is normalized to an empty array so clients can always range over it.
func WriteData(w http.ResponseWriter, status int, data any, notes []model.Notification) {
	if notes == nil {
		notes = []model.Notification{}
	}
	WriteJSON(w, status, dataResponse{Data: data, Notifications: notes})
}

// WriteError writes an ErrorEnvelope as a JSON response with the mapped HTTP
// status code. Non-envelope errors become a generic 500. The active trace id
// is stamped onto the envelope when it doesn't already carry one.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		ee = model.NewInternalError()
	}
	if ee.TraceID == "" && r != nil {
		ee.TraceID = observability.TraceIDFromContext(r.Context())
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}
