package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/calade/reportdeck/model"
)

const previewShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; margin: 0; color: #1f2430; }
.report-header { background: #2d3a4f; color: #fff; padding: 1.5rem; text-align: center; }
.report-header h1 { margin: 0 0 0.25rem; font-size: 1.6rem; }
.report-meta { display: flex; justify-content: space-between; align-items: center; margin: 1rem; }
.badge { background: #2d6cdf; color: #fff; border-radius: 0.75rem; padding: 0.2rem 0.7rem; font-size: 0.85rem; }
.limited-notice { background: #fff3cd; border: 1px solid #f0dc9a; border-radius: 0.25rem; margin: 1rem; padding: 0.75rem; }
table.results { width: calc(100%% - 2rem); margin: 0 1rem 1rem; border-collapse: collapse; }
table.results th { background: #1f2430; color: #fff; text-align: left; }
table.results th, table.results td { border: 1px solid #d4d8e0; padding: 0.4rem 0.6rem; }
table.results tr:nth-child(even) td { background: #f5f6f9; }
tr.group-header td { background: #e8ebf2; font-weight: 600; }
.preview-footer { text-align: center; color: #7a8194; padding: 1rem 0 2rem; }
</style>
</head>
<body>
%s
</body>
</html>
`

var previewPolicy = newPreviewPolicy()

func newPreviewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)).Globally()
	return p
}

// HTMLPreview renders the results as a standalone HTML document capped at
// PreviewRowCap records. Every value is escaped and the generated body runs
// through a bluemonday policy before it is wrapped into the document shell.
func HTMLPreview(in Input) []byte {
	fields := VisibleFields(in.Fields)
	width := len(fields)
	if width == 0 {
		width = 1
	}

	var body strings.Builder
	fmt.Fprintf(&body, `<div class="report-header"><h1>%s</h1>`, html.EscapeString(in.reportName()))
	if in.ModelLabel != "" {
		fmt.Fprintf(&body, `<p>Model: %s</p>`, html.EscapeString(in.ModelLabel))
	}
	fmt.Fprintf(&body, `<small>Generated: %s</small></div>`, in.generatedAt().Format("2006-01-02 15:04"))

	blocks, grouped := groupedRows(in.Rows)
	available := len(in.Rows)
	if grouped {
		available = 0
		for _, b := range blocks {
			available += len(b.Records)
		}
	}
	total := in.recordCount()
	if total < available {
		total = available
	}

	var table strings.Builder
	table.WriteString(`<table class="results"><thead><tr>`)
	for _, f := range fields {
		fmt.Fprintf(&table, `<th>%s</th>`, html.EscapeString(FieldLabel(f)))
	}
	table.WriteString(`</tr></thead><tbody>`)

	shown := 0
	if grouped {
		for _, b := range blocks {
			if shown >= PreviewRowCap {
				break
			}
			fmt.Fprintf(&table, `<tr class="group-header"><td colspan="%d"><strong>%s</strong> <span class="badge">%d records</span></td></tr>`,
				width, html.EscapeString(b.Name), b.Count)
			for _, row := range b.Records {
				if shown >= PreviewRowCap {
					break
				}
				writePreviewRow(&table, fields, row)
				shown++
			}
		}
	} else {
		for _, row := range in.Rows {
			if shown >= PreviewRowCap {
				break
			}
			writePreviewRow(&table, fields, row)
			shown++
		}
	}
	table.WriteString(`</tbody></table>`)

	if shown < total {
		fmt.Fprintf(&body, `<div class="limited-notice"><strong>Note:</strong> Showing %d of %d records.</div>`, shown, total)
	}
	fmt.Fprintf(&body, `<div class="report-meta"><h5>Results</h5><span class="badge">Records: %d</span></div>`, total)
	body.WriteString(table.String())
	body.WriteString(`<div class="preview-footer"><small>Generated by the report builder</small></div>`)

	doc := fmt.Sprintf(previewShell, html.EscapeString(in.reportName()), previewPolicy.Sanitize(body.String()))
	return []byte(doc)
}

func writePreviewRow(w *strings.Builder, fields []model.FieldSpec, row model.ReportRow) {
	w.WriteString(`<tr>`)
	for _, f := range fields {
		fmt.Fprintf(w, `<td>%s</td>`, html.EscapeString(FormatValue(row[f.Name], f.FormatType)))
	}
	w.WriteString(`</tr>`)
}
