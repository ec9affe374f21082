package gateway

import "github.com/calade/reportdeck/model"

// The gateway wraps every model-level reply in a success envelope. A
// success=false reply carries the backend's message and arrives with HTTP 200.

type fieldsEnvelope struct {
	Success bool                    `json:"success"`
	Fields  []model.FieldDescriptor `json:"fields"`
	Error   string                  `json:"error,omitempty"`
	Message string                  `json:"message,omitempty"`
}

type executeRequest struct {
	ReportID int64                  `json:"report_id"`
	Filters  []model.PreparedFilter `json:"filters"`
	Limit    int                    `json:"limit,omitempty"`
}

type executeEnvelope struct {
	Success bool              `json:"success"`
	Data    []model.ReportRow `json:"data"`
	Count   int               `json:"count"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
}

// CreateReportRequest is the persistence payload for a report or template.
type CreateReportRequest struct {
	Name       string              `json:"name"`
	ModelID    int64               `json:"model_id"`
	Fields     []model.FieldTuple  `json:"fields"`
	Filters    []model.FilterTuple `json:"filters"`
	IsTemplate bool                `json:"is_template"`
}

type createEnvelope struct {
	Success  bool   `json:"success"`
	ReportID int64  `json:"report_id"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}

type validateRequest struct {
	Model   string                 `json:"model"`
	Filters []model.PreparedFilter `json:"filters"`
}

// FilterValidation is the backend's verdict on one submitted filter.
type FilterValidation struct {
	Field   string `json:"field"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type validateEnvelope struct {
	Success bool               `json:"success"`
	Results []FilterValidation `json:"results"`
	Error   string             `json:"error,omitempty"`
	Message string             `json:"message,omitempty"`
}

// envelopeMessage picks the most specific failure text from an envelope.
func envelopeMessage(errText, message, fallback string) string {
	if message != "" {
		return message
	}
	if errText != "" {
		return errText
	}
	return fallback
}
