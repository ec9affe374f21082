package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calade/reportdeck/model"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if xct := w.Header().Get("X-Content-Type-Options"); xct != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", xct)
	}

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteData_wrapsDataAndNotifications(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusCreated, map[string]string{"id": "abc"}, []model.Notification{
		{Severity: model.SeveritySuccess, Message: "Report executed"},
	})

	if w.Code != 201 {
		t.Errorf("status = %d, want 201", w.Code)
	}
	var resp struct {
		Data          map[string]string    `json:"data"`
		Notifications []model.Notification `json:"notifications"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data["id"] != "abc" {
		t.Errorf("data = %v", resp.Data)
	}
	if len(resp.Notifications) != 1 || resp.Notifications[0].Message != "Report executed" {
		t.Errorf("notifications = %v", resp.Notifications)
	}
}

func TestWriteData_nilNotificationsRenderEmptyArray(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusOK, map[string]string{"id": "abc"}, nil)

	var resp map[string]json.RawMessage
	json.NewDecoder(w.Body).Decode(&resp)
	if string(resp["notifications"]) != "[]" {
		t.Errorf("notifications = %s, want []", resp["notifications"])
	}
}

func TestWriteError_envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil, model.NewSessionNotFoundError("session missing"))

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}

	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Code != "SESSION_NOT_FOUND" {
		t.Errorf("code = %q, want SESSION_NOT_FOUND", resp.Error.Code)
	}
}

func TestWriteError_non_envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil, fmt.Errorf("something went wrong"))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 for non-envelope error", w.Code)
	}
	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Code != model.ErrInternalError {
		t.Errorf("code = %q, want %s", resp.Error.Code, model.ErrInternalError)
	}
}

func TestWriteError_unknownCodeFallsBackTo500(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil, &model.ErrorEnvelope{Code: "SOMETHING_ELSE", Message: "test"})
	if w.Code != 500 {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestStatusForCode_coverage(t *testing.T) {
	codes := []struct {
		code   string
		status int
	}{
		{model.ErrBadRequest, 400},
		{model.ErrUnauthorized, 401},
		{model.ErrForbidden, 403},
		{model.ErrNotFound, 404},
		{model.ErrConflict, 409},
		{model.ErrValidationError, 422},
		{model.ErrInternalError, 500},
		{model.ErrBackendUnavailable, 502},
		{model.ErrBackendTimeout, 504},
		{model.ErrSessionNotFound, 404},
		{model.ErrModelNotFound, 404},
		{model.ErrNoReportData, 409},
		{model.ErrInvalidSettings, 422},
		{model.ErrImportFormat, 400},
	}
	for _, tc := range codes {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, nil, &model.ErrorEnvelope{Code: tc.code, Message: "test"})
			if w.Code != tc.status {
				t.Errorf("status for %s = %d, want %d", tc.code, w.Code, tc.status)
			}
		})
	}
}
