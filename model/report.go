// Package model defines the shared data types of the report-builder service:
// the editable report definition, its field/filter/sort/group specs, history
// snapshots, execution statistics, and the error envelope returned to clients.
package model

// ModelDescriptor identifies one data model eligible for reporting, as
// returned by the backend's model listing.
type ModelDescriptor struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// FieldDescriptor is one entry of a model's available fields. The backend
// reports the display label under the wire name "string".
type FieldDescriptor struct {
	Name  string `json:"name"`
	Label string `json:"string"`
	Type  string `json:"type"`
}

// FieldSpec is one column of the report with display and formatting metadata.
type FieldSpec struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Visible     bool   `json:"visible"`
	Sequence    int    `json:"sequence"`
	FormatType  string `json:"format_type"`
	Aggregation string `json:"aggregation"`
}

// Filter operators accepted by the backend.
const (
	OpEquals    = "="
	OpNotEquals = "!="
	OpGreater   = ">"
	OpGreaterEq = ">="
	OpLess      = "<"
	OpLessEq    = "<="
	OpLike      = "like"
	OpILike     = "ilike"
	OpIn        = "in"
	OpNotIn     = "not in"
)

// Operators lists every filter operator in display order.
var Operators = []string{
	OpEquals, OpNotEquals, OpGreater, OpGreaterEq, OpLess, OpLessEq,
	OpLike, OpILike, OpIn, OpNotIn,
}

// ValidOperator reports whether op is one of the accepted filter operators.
func ValidOperator(op string) bool {
	for _, o := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// FilterSpec is one filter row of the report definition. ID is assigned at
// creation time and never changes.
type FilterSpec struct {
	ID        string `json:"id"`
	Field     string `json:"field"`
	FieldType string `json:"field_type"`
	Operator  string `json:"operator"`
	Value     string `json:"value"`
	Active    bool   `json:"active"`
}

// SortSpec is one sort row. Direction is "asc" or "desc".
type SortSpec struct {
	ID        string `json:"id"`
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// GroupSpec is one grouping row.
type GroupSpec struct {
	ID         string `json:"id"`
	Field      string `json:"field"`
	ShowTotals bool   `json:"show_totals"`
}

// ReportDefinition is the user-configured combination of model, fields,
// filters, sorts, and groups describing what data to retrieve and how to
// present it. Field names within SelectedFields are unique; order is
// significant and Sequence holds the 1-based rank.
type ReportDefinition struct {
	SelectedModel  *ModelDescriptor `json:"selected_model,omitempty"`
	SelectedFields []FieldSpec      `json:"selected_fields"`
	Filters        []FilterSpec     `json:"filters"`
	Sorts          []SortSpec       `json:"sorts"`
	Groups         []GroupSpec      `json:"groups"`
}

// PreparedFilter is the {field, operator, value} triple sent to the backend
// at execution time.
type PreparedFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// FieldTuple is the persistence shape of one report column, with the sequence
// recomputed from the field's position.
type FieldTuple struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Sequence    int    `json:"sequence"`
	Visible     bool   `json:"visible"`
	FormatType  string `json:"format_type"`
	Aggregation string `json:"aggregation"`
}

// FilterTuple is the persistence shape of one filter row, tagged with a
// generated display name and sequence.
type FilterTuple struct {
	Name     string `json:"name"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Active   bool   `json:"active"`
	Sequence int    `json:"sequence"`
}

// ReportRow is one record of an executed report.
type ReportRow map[string]any

// formatTypes maps a backend field type to the display format used for the
// column. Unknown types render as plain text.
var formatTypes = map[string]string{
	"monetary":  "currency",
	"integer":   "number",
	"float":     "number",
	"date":      "date",
	"datetime":  "datetime",
	"boolean":   "boolean",
	"selection": "selection",
}

// FormatTypeFor derives the display format for a backend field type.
func FormatTypeFor(fieldType string) string {
	if ft, ok := formatTypes[fieldType]; ok {
		return ft
	}
	return "text"
}

// DefaultAggregation is the aggregation assigned to newly added fields.
const DefaultAggregation = "none"
