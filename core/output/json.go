package output

import (
	"encoding/json"
	"io"

	"profit-engine/core/determinism"
	"profit-engine/core/types"
)

// JSONFormatter writes the report with its run metadata. Values are
// rendered as strings so no precision is lost to float conversion.
type JSONFormatter struct {
	opts   Options
	indent bool
}

// NewJSONFormatter creates an indented JSON formatter.
func NewJSONFormatter(opts Options) *JSONFormatter {
	return &JSONFormatter{opts: opts, indent: true}
}

// Format returns FormatJSON.
func (f *JSONFormatter) Format() Format { return FormatJSON }

type jsonReport struct {
	RunID       string        `json:"run_id"`
	Currency    string        `json:"currency,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Metrics     []string      `json:"metrics"`
	Stats       jsonStats     `json:"stats"`
	Rows        []jsonRow     `json:"rows"`
	Skipped     []jsonSkipped `json:"skipped,omitempty"`
}

type jsonStats struct {
	Records       int         `json:"records"`
	Rows          int         `json:"rows"`
	Skipped       int         `json:"skipped"`
	SpendFallback int         `json:"spend_fallback"`
	RateWarnings  int         `json:"rate_warnings"`
	Totals        []jsonTotal `json:"totals"`
}

type jsonTotal struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

type jsonRow struct {
	types.Dimensions
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

type jsonSkipped struct {
	Index  int    `json:"index"`
	Line   int    `json:"line,omitempty"`
	Record string `json:"record"`
	Reason string `json:"reason"`
}

// Render writes the report as a single JSON document.
func (f *JSONFormatter) Render(w io.Writer, report *types.Report) error {
	doc := jsonReport{
		RunID:       report.RunID,
		Currency:    string(report.Currency),
		Fingerprint: report.Fingerprint,
		Metrics:     make([]string, 0, len(report.Metrics)),
		Stats: jsonStats{
			Records:       report.Stats.Records,
			Rows:          report.Stats.Rows,
			Skipped:       report.Stats.Skipped,
			SpendFallback: report.Stats.SpendFallback,
			RateWarnings:  report.Stats.RateWarnings,
			Totals:        []jsonTotal{},
		},
		Rows: make([]jsonRow, 0, len(report.Rows)),
	}
	for _, m := range report.Metrics {
		doc.Metrics = append(doc.Metrics, m.String())
	}
	for _, m := range determinism.SortedMetrics(report.Stats.Totals) {
		doc.Stats.Totals = append(doc.Stats.Totals, jsonTotal{Metric: m.String(), Value: formatValue(report.Stats.Totals[m], f.opts.Precision)})
	}
	for _, row := range report.Rows {
		doc.Rows = append(doc.Rows, jsonRow{
			Dimensions: row.Dimensions,
			Metric:     row.Metric.String(),
			Value:      formatValue(row.Value, f.opts.Precision),
		})
	}
	for _, s := range report.Skipped {
		doc.Skipped = append(doc.Skipped, jsonSkipped{
			Index:  s.Index,
			Line:   s.Line,
			Record: s.Record.String(),
			Reason: s.Reason,
		})
	}

	enc := json.NewEncoder(w)
	if f.indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(doc)
}
