package export

import (
	"encoding/json"
	"time"

	"github.com/calade/reportdeck/model"
)

type jsonField struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Type   string `json:"type"`
	Format string `json:"format"`
}

type jsonSummary struct {
	TotalRecords int `json:"total_records"`
}

type jsonDocument struct {
	ReportName  string            `json:"report_name"`
	GeneratedAt time.Time         `json:"generated_at"`
	Model       string            `json:"model"`
	Fields      []jsonField       `json:"fields"`
	Data        []model.ReportRow `json:"data"`
	Summary     jsonSummary       `json:"summary"`
}

// JSON renders the results as an indented JSON document. Data rows pass
// through unchanged; the field list describes the visible columns.
func JSON(in Input) ([]byte, error) {
	fields := VisibleFields(in.Fields)
	doc := jsonDocument{
		ReportName:  in.reportName(),
		GeneratedAt: in.generatedAt(),
		Model:       in.ModelName,
		Fields:      make([]jsonField, 0, len(fields)),
		Data:        in.Rows,
		Summary:     jsonSummary{TotalRecords: in.recordCount()},
	}
	for _, f := range fields {
		doc.Fields = append(doc.Fields, jsonField{
			Name:   f.Name,
			Label:  FieldLabel(f),
			Type:   f.Type,
			Format: f.FormatType,
		})
	}
	if doc.Data == nil {
		doc.Data = []model.ReportRow{}
	}
	return json.MarshalIndent(doc, "", "  ")
}
