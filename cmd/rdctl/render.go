package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/calade/reportdeck/internal/export"
	"github.com/calade/reportdeck/model"
)

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	return tw
}

// renderModels prints the reporting catalog.
func renderModels(w io.Writer, models []model.ModelDescriptor) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Model"})
	for _, m := range models {
		tw.AppendRow(table.Row{m.ID, m.Name, m.Model})
	}
	tw.Render()
	fmt.Fprintf(w, "\n%d models available\n", len(models))
}

// renderFields prints a model's available fields.
func renderFields(w io.Writer, modelName string, fields []model.FieldDescriptor) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Name", "Label", "Type"})
	for _, f := range fields {
		tw.AppendRow(table.Row{f.Name, f.Label, f.Type})
	}
	tw.Render()
	fmt.Fprintf(w, "\n%d fields on %s\n", len(fields), modelName)
}

// renderResult prints executed rows as a table: visible columns in sequence
// order, cells formatted the same way the server-side exports format them.
func renderResult(w io.Writer, fields []model.FieldSpec, rows []model.ReportRow, count int) {
	visible := export.VisibleFields(fields)

	header := make(table.Row, len(visible))
	for i, f := range visible {
		header[i] = export.FieldLabel(f)
	}

	tw := newTable(w)
	tw.AppendHeader(header)
	for _, row := range rows {
		cells := make(table.Row, len(visible))
		for i, f := range visible {
			cells[i] = export.FormatValue(row[f.Name], f.FormatType)
		}
		tw.AppendRow(cells)
	}
	tw.Render()

	if count > len(rows) {
		fmt.Fprintf(w, "\n... and %d more records\n", count-len(rows))
	}
	fmt.Fprintf(w, "\nTotal records: %d\n", count)
}

// printNotifications relays server notifications to the terminal.
func printNotifications(w io.Writer, notes []model.Notification) {
	for _, n := range notes {
		fmt.Fprintf(w, "[%s] %s\n", n.Severity, n.Message)
	}
}
