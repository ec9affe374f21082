package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/calade/reportdeck/model"
)

// WriteCSV streams the results as CSV: a header row of field labels, then
// one row per record with fields in sequence order. Grouped results get a
// marker row per group and a blank separator row after it.
func WriteCSV(w io.Writer, in Input) error {
	fields := VisibleFields(in.Fields)
	width := len(fields)
	if width == 0 {
		width = 1
	}

	cw := csv.NewWriter(w)
	header := make([]string, width)
	for i, f := range fields {
		header[i] = FieldLabel(f)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	if blocks, ok := groupedRows(in.Rows); ok {
		for _, b := range blocks {
			marker := make([]string, width)
			marker[0] = fmt.Sprintf("Group: %s (%d records)", b.Name, b.Count)
			if err := cw.Write(marker); err != nil {
				return err
			}
			for _, row := range b.Records {
				if err := cw.Write(csvRecord(fields, row)); err != nil {
					return err
				}
			}
			if err := cw.Write(make([]string, width)); err != nil {
				return err
			}
		}
	} else {
		for _, row := range in.Rows {
			if err := cw.Write(csvRecord(fields, row)); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// CSV renders the results into a byte slice.
func CSV(in Input) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvRecord(fields []model.FieldSpec, row model.ReportRow) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = FormatValue(row[f.Name], f.FormatType)
	}
	return out
}
