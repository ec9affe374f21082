package model

import "testing"

func sampleSnapshot() Snapshot {
	return Snapshot{
		SelectedFields: []FieldSpec{
			{Name: "name", Label: "Name", Type: "char", Visible: true, Sequence: 1, FormatType: "text", Aggregation: "none"},
			{Name: "amount", Label: "Amount", Type: "monetary", Visible: true, Sequence: 2, FormatType: "currency", Aggregation: "sum"},
		},
		Filters: []FilterSpec{
			{ID: "f1", Field: "state", FieldType: "selection", Operator: "=", Value: "done", Active: true},
		},
		Groups: []GroupSpec{
			{ID: "g1", Field: "state", ShowTotals: true},
		},
		Sorts: []SortSpec{
			{ID: "s1", Field: "name", Direction: "asc"},
		},
	}
}

func TestSnapshotClone_independence(t *testing.T) {
	orig := sampleSnapshot()
	clone := orig.Clone()

	clone.SelectedFields[0].Label = "Changed"
	clone.Filters[0].Value = "draft"
	clone.Groups[0].ShowTotals = false
	clone.Sorts[0].Direction = "desc"

	if orig.SelectedFields[0].Label != "Name" {
		t.Errorf("original field label mutated: %q", orig.SelectedFields[0].Label)
	}
	if orig.Filters[0].Value != "done" {
		t.Errorf("original filter value mutated: %q", orig.Filters[0].Value)
	}
	if !orig.Groups[0].ShowTotals {
		t.Error("original group show_totals mutated")
	}
	if orig.Sorts[0].Direction != "asc" {
		t.Errorf("original sort direction mutated: %q", orig.Sorts[0].Direction)
	}
}

func TestSnapshotClone_appendDoesNotAlias(t *testing.T) {
	orig := sampleSnapshot()
	clone := orig.Clone()

	clone.SelectedFields = append(clone.SelectedFields, FieldSpec{Name: "extra"})
	if len(orig.SelectedFields) != 2 {
		t.Errorf("original field count = %d, want 2", len(orig.SelectedFields))
	}
}

func TestCloneFields_nil(t *testing.T) {
	if CloneFields(nil) != nil {
		t.Error("CloneFields(nil) != nil")
	}
}

func TestCloneRows_deepCopiesNested(t *testing.T) {
	rows := []ReportRow{
		{
			"name":    "Azure Interior",
			"partner": map[string]any{"id": 7, "name": "Azure"},
			"tags":    []any{"vip", "eu"},
		},
	}

	clone := CloneRows(rows)
	clone[0]["name"] = "Changed"
	clone[0]["partner"].(map[string]any)["name"] = "Other"
	clone[0]["tags"].([]any)[0] = "none"

	if rows[0]["name"] != "Azure Interior" {
		t.Errorf("original row mutated: %v", rows[0]["name"])
	}
	if rows[0]["partner"].(map[string]any)["name"] != "Azure" {
		t.Error("nested map aliased between clone and original")
	}
	if rows[0]["tags"].([]any)[0] != "vip" {
		t.Error("nested slice aliased between clone and original")
	}
}

func TestCloneDefinition_copiesModelPointer(t *testing.T) {
	def := ReportDefinition{
		SelectedModel:  &ModelDescriptor{ID: 1, Name: "Contact", Model: "res.partner"},
		SelectedFields: []FieldSpec{{Name: "name"}},
	}

	clone := CloneDefinition(def)
	clone.SelectedModel.Name = "Changed"

	if def.SelectedModel.Name != "Contact" {
		t.Errorf("original model descriptor mutated: %q", def.SelectedModel.Name)
	}
}
