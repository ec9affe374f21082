package export

import (
	"strings"
	"testing"

	"github.com/calade/reportdeck/model"
)

func csvFields() []model.FieldSpec {
	return []model.FieldSpec{
		{Name: "name", Label: "Name", Type: "char", Visible: true, Sequence: 1, FormatType: "text"},
		{Name: "city", Label: "City", Type: "char", Visible: true, Sequence: 2, FormatType: "text"},
		{Name: "credit", Label: "Total Receivable", Type: "monetary", Visible: true, Sequence: 3, FormatType: "currency"},
		{Name: "internal_ref", Label: "Internal Reference", Type: "char", Visible: false, Sequence: 4, FormatType: "text"},
	}
}

// --- flat results ---

func TestCSV_writesHeaderAndRows(t *testing.T) {
	in := Input{
		Fields: csvFields(),
		Rows: []model.ReportRow{
			{"name": "Azure Interior", "city": "Fremont", "credit": float64(1250), "internal_ref": "AZ-01"},
			{"name": "Deco Addict", "city": "Pleasant Hill", "credit": float64(0)},
		},
	}

	got, err := CSV(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := strings.Join([]string{
		"Name,City,Total Receivable",
		"Azure Interior,Fremont,1250.00",
		"Deco Addict,Pleasant Hill,0.00",
		"",
	}, "\n")
	if string(got) != want {
		t.Fatalf("csv output:\n%s\nwant:\n%s", got, want)
	}
}

func TestCSV_missingValuesRenderEmpty(t *testing.T) {
	in := Input{
		Fields: csvFields(),
		Rows:   []model.ReportRow{{"name": "Azure Interior", "city": false}},
	}

	got, err := CSV(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(got), "\n"), "\n")
	if lines[1] != "Azure Interior,," {
		t.Fatalf("row = %q, want empty cells for absent values", lines[1])
	}
}

func TestCSV_relationalPairsUseDisplayName(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "partner_id", Label: "Customer", Type: "many2one", Visible: true, Sequence: 1, FormatType: "text"},
	}
	in := Input{
		Fields: fields,
		Rows:   []model.ReportRow{{"partner_id": []any{float64(7), "Azure Interior"}}},
	}

	got, err := CSV(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(got), "Azure Interior") {
		t.Fatalf("relational value not rendered: %q", got)
	}
}

// --- grouped results ---

func TestCSV_groupedRows(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "name", Label: "Name", Visible: true, Sequence: 1, FormatType: "text"},
		{Name: "city", Label: "City", Visible: true, Sequence: 2, FormatType: "text"},
	}
	in := Input{
		Fields: fields,
		Rows: []model.ReportRow{
			{
				"group_name":  "Fremont",
				"group_count": float64(2),
				"records": []any{
					map[string]any{"name": "Azure Interior", "city": "Fremont"},
					map[string]any{"name": "Ready Mat", "city": "Fremont"},
				},
			},
			{
				"group_name":  "Pleasant Hill",
				"group_count": float64(2),
				"records": []any{
					map[string]any{"name": "Deco Addict", "city": "Pleasant Hill"},
					map[string]any{"name": "Wood Corner", "city": "Pleasant Hill"},
				},
			},
		},
	}

	got, err := CSV(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := strings.Join([]string{
		"Name,City",
		"Group: Fremont (2 records),",
		"Azure Interior,Fremont",
		"Ready Mat,Fremont",
		",",
		"Group: Pleasant Hill (2 records),",
		"Deco Addict,Pleasant Hill",
		"Wood Corner,Pleasant Hill",
		",",
		"",
	}, "\n")
	if string(got) != want {
		t.Fatalf("csv output:\n%s\nwant:\n%s", got, want)
	}
}

func TestCSV_emptyResult(t *testing.T) {
	got, err := CSV(Input{Fields: csvFields()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "Name,City,Total Receivable\n" {
		t.Fatalf("empty result should still write the header, got %q", got)
	}
}
