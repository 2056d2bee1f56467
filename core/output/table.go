package output

import (
	"io"

	"profit-engine/core/determinism"
	"profit-engine/core/types"
	"profit-engine/core/ui"
)

// TableFormatter prints the report as an aligned terminal table followed by
// per-metric totals.
type TableFormatter struct {
	opts Options
}

// NewTableFormatter creates a table formatter.
func NewTableFormatter(opts Options) *TableFormatter {
	return &TableFormatter{opts: opts}
}

// Format returns FormatTable.
func (f *TableFormatter) Format() Format { return FormatTable }

// Render writes the table.
func (f *TableFormatter) Render(w io.Writer, report *types.Report) error {
	uw := ui.NewWriter(w, f.opts.NoColor)
	value := len(types.Columns) - 1

	t := uw.NewTable(types.Columns...).SetAlign(value, ui.AlignRight)
	for _, row := range report.Rows {
		t.AddRow(row.Record(f.opts.Precision)...)
	}
	t.Render()

	if len(report.Stats.Totals) == 0 {
		return nil
	}
	uw.Println("")
	totals := uw.NewTable("Metric", "Total").SetAlign(1, ui.AlignRight)
	for _, m := range determinism.SortedMetrics(report.Stats.Totals) {
		totals.AddRow(m.String(), formatValue(report.Stats.Totals[m], f.opts.Precision))
	}
	totals.Render()
	uw.Println("%d records, %d rows", report.Stats.Records, report.Stats.Rows)
	return nil
}
