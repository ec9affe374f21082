// Package export renders the current report results into downloadable
// documents. The backend produces xlsx and pdf itself; csv, json and the
// html preview are rendered here from the rows already held in memory.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/calade/reportdeck/model"
)

// PreviewRowCap bounds the number of records rendered into the HTML preview.
const PreviewRowCap = 100

// Input carries everything a renderer needs. Fields may arrive in any order
// and include hidden columns; renderers keep visible fields sorted by
// sequence.
type Input struct {
	ReportName  string
	ModelName   string
	ModelLabel  string
	Fields      []model.FieldSpec
	Rows        []model.ReportRow
	Count       int
	GeneratedAt time.Time
}

func (in Input) reportName() string {
	if in.ReportName != "" {
		return in.ReportName
	}
	if in.ModelLabel != "" {
		return in.ModelLabel + " report"
	}
	return "Report"
}

func (in Input) generatedAt() time.Time {
	if in.GeneratedAt.IsZero() {
		return time.Now().UTC()
	}
	return in.GeneratedAt
}

func (in Input) recordCount() int {
	if in.Count > 0 {
		return in.Count
	}
	return len(in.Rows)
}

// VisibleFields returns the visible columns in sequence order.
func VisibleFields(fields []model.FieldSpec) []model.FieldSpec {
	out := make([]model.FieldSpec, 0, len(fields))
	for _, f := range fields {
		if f.Visible {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// FieldLabel returns the column header for a field.
func FieldLabel(f model.FieldSpec) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// FormatValue renders a raw backend value for display. Relational values
// arrive as [id, display name] pairs and false marks an absent value on
// non-boolean fields.
func FormatValue(v any, format string) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		if len(val) >= 2 {
			return FormatValue(val[1], "text")
		}
		if len(val) == 1 {
			return FormatValue(val[0], format)
		}
		return ""
	case bool:
		if format != "boolean" && !val {
			return ""
		}
		if val {
			return "Yes"
		}
		return "No"
	}
	switch format {
	case "number":
		if f, ok := numeric(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	case "currency":
		if f, ok := numeric(v); ok {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
	case "date":
		if s, ok := v.(string); ok && len(s) >= 10 {
			return s[:10]
		}
	case "datetime":
		if s, ok := v.(string); ok && len(s) >= 16 {
			return s[:16]
		}
	}
	return fmt.Sprint(v)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// groupBlock is one grouped result entry: a header plus its member records.
type groupBlock struct {
	Name    string
	Count   int
	Records []model.ReportRow
}

// groupedRows detects grouped results, which the backend returns as rows of
// {group_name, group_count, records} instead of flat records.
func groupedRows(rows []model.ReportRow) ([]groupBlock, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	if _, ok := rows[0]["group_name"]; !ok {
		return nil, false
	}
	blocks := make([]groupBlock, 0, len(rows))
	for _, row := range rows {
		b := groupBlock{Name: fmt.Sprint(row["group_name"])}
		switch recs := row["records"].(type) {
		case []model.ReportRow:
			b.Records = model.CloneRows(recs)
		case []any:
			for _, r := range recs {
				if m, ok := r.(map[string]any); ok {
					b.Records = append(b.Records, model.ReportRow(m))
				}
			}
		}
		if n, ok := numeric(row["group_count"]); ok && n > 0 {
			b.Count = int(n)
		} else {
			b.Count = len(b.Records)
		}
		blocks = append(blocks, b)
	}
	return blocks, true
}
