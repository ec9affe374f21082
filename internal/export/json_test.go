package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/calade/reportdeck/model"
)

func TestJSON_documentShape(t *testing.T) {
	generated := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	in := Input{
		ReportName: "Q3 Contacts",
		ModelName:  "res.partner",
		ModelLabel: "Contact",
		Fields: []model.FieldSpec{
			{Name: "credit", Label: "Total Receivable", Type: "monetary", Visible: true, Sequence: 2, FormatType: "currency"},
			{Name: "name", Type: "char", Visible: true, Sequence: 1, FormatType: "text"},
			{Name: "internal_ref", Label: "Internal Reference", Type: "char", Visible: false, Sequence: 3, FormatType: "text"},
		},
		Rows: []model.ReportRow{
			{"name": "Azure Interior", "credit": float64(1250)},
			{"name": "Deco Addict", "credit": float64(0)},
		},
		Count:       2,
		GeneratedAt: generated,
	}

	raw, err := JSON(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		ReportName  string    `json:"report_name"`
		GeneratedAt time.Time `json:"generated_at"`
		Model       string    `json:"model"`
		Fields      []struct {
			Name   string `json:"name"`
			Label  string `json:"label"`
			Type   string `json:"type"`
			Format string `json:"format"`
		} `json:"fields"`
		Data    []map[string]any `json:"data"`
		Summary struct {
			TotalRecords int `json:"total_records"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if doc.ReportName != "Q3 Contacts" {
		t.Fatalf("report_name = %q", doc.ReportName)
	}
	if doc.Model != "res.partner" {
		t.Fatalf("model = %q", doc.Model)
	}
	if !doc.GeneratedAt.Equal(generated) {
		t.Fatalf("generated_at = %v, want %v", doc.GeneratedAt, generated)
	}
	if doc.Summary.TotalRecords != 2 {
		t.Fatalf("total_records = %d, want 2", doc.Summary.TotalRecords)
	}

	if len(doc.Fields) != 2 {
		t.Fatalf("fields = %d, want visible fields only", len(doc.Fields))
	}
	if doc.Fields[0].Name != "name" || doc.Fields[1].Name != "credit" {
		t.Fatalf("fields out of sequence order: %+v", doc.Fields)
	}
	if doc.Fields[0].Label != "name" {
		t.Fatalf("missing label should fall back to the field name, got %q", doc.Fields[0].Label)
	}
	if doc.Fields[1].Type != "monetary" || doc.Fields[1].Format != "currency" {
		t.Fatalf("field metadata lost: %+v", doc.Fields[1])
	}

	if len(doc.Data) != 2 {
		t.Fatalf("data rows = %d, want 2", len(doc.Data))
	}
	if doc.Data[0]["name"] != "Azure Interior" {
		t.Fatalf("data row altered: %+v", doc.Data[0])
	}
}

func TestJSON_emptyResult(t *testing.T) {
	raw, err := JSON(Input{ModelName: "res.partner", ModelLabel: "Contact"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := string(raw)
	if !strings.Contains(out, `"report_name": "Contact report"`) {
		t.Fatalf("default report name missing:\n%s", out)
	}
	if !strings.Contains(out, `"data": []`) {
		t.Fatalf("empty data should render as an empty array:\n%s", out)
	}
	if !strings.Contains(out, `"total_records": 0`) {
		t.Fatalf("total_records missing:\n%s", out)
	}
}
