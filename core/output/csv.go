package output

import (
	"encoding/csv"
	"io"

	"profit-engine/core/types"
)

// CSVFormatter writes the long-format report: a header row, then one row
// per (record, metric) in report order.
type CSVFormatter struct {
	opts Options
}

// NewCSVFormatter creates a CSV formatter.
func NewCSVFormatter(opts Options) *CSVFormatter {
	return &CSVFormatter{opts: opts}
}

// Format returns FormatCSV.
func (f *CSVFormatter) Format() Format { return FormatCSV }

// Render writes the report as CSV.
func (f *CSVFormatter) Render(w io.Writer, report *types.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(types.Columns); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := cw.Write(row.Record(f.opts.Precision)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
