// Package ui - Terminal user interface
// Tables, colors and the run summary printed by the CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// Colors for terminal output
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

// Writer is the UI output destination
type Writer struct {
	out       io.Writer
	noColor   bool
	verbosity int
}

// NewWriter creates a UI writer
func NewWriter(out io.Writer, noColor bool) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{
		out:       out,
		noColor:   noColor,
		verbosity: 1,
	}
}

// SetVerbosity sets output verbosity (0=quiet, 1=normal, 2=verbose)
func (w *Writer) SetVerbosity(level int) {
	w.verbosity = level
}

func (w *Writer) color(c, text string) string {
	if w.noColor {
		return text
	}
	return c + text + Reset
}

// Print writes formatted text
func (w *Writer) Print(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

// Println writes a line with newline
func (w *Writer) Println(format string, args ...interface{}) {
	w.Print(format+"\n", args...)
}

// Header prints a section header
func (w *Writer) Header(title string) {
	if w.verbosity < 1 {
		return
	}
	w.Println("")
	w.Println("%s", w.color(Bold+Cyan, "━━━ "+title+" ━━━"))
	w.Println("")
}

// Success prints a success message
func (w *Writer) Success(format string, args ...interface{}) {
	w.Println("%s%s", w.color(Green, "✓ "), fmt.Sprintf(format, args...))
}

// Warning prints a warning
func (w *Writer) Warning(format string, args ...interface{}) {
	w.Println("%s%s", w.color(Yellow, "⚠ "), fmt.Sprintf(format, args...))
}

// Error prints an error
func (w *Writer) Error(format string, args ...interface{}) {
	w.Println("%s%s", w.color(Red, "✗ "), fmt.Sprintf(format, args...))
}

// Debug prints a message at verbosity 2
func (w *Writer) Debug(format string, args ...interface{}) {
	if w.verbosity < 2 {
		return
	}
	w.Println("%s", w.color(Dim, "  "+fmt.Sprintf(format, args...)))
}

// Align is a table column alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table renders a table
type Table struct {
	w       *Writer
	headers []string
	align   []Align
	rows    [][]string
	widths  []int
}

// NewTable creates a table
func (w *Writer) NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	return &Table{
		w:       w,
		headers: headers,
		align:   make([]Align, len(headers)),
		widths:  widths,
	}
}

// SetAlign sets the alignment of column i.
func (t *Table) SetAlign(i int, a Align) *Table {
	if i >= 0 && i < len(t.align) {
		t.align[i] = a
	}
	return t
}

// AddRow adds a row, padding or truncating cells to the header count.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		}
		if n := utf8.RuneCountInString(row[i]); n > t.widths[i] {
			t.widths[i] = n
		}
	}
	t.rows = append(t.rows, row)
}

// Render prints the table
func (t *Table) Render() {
	t.w.Println("%s", t.w.color(Bold, t.line(t.headers)))

	sep := make([]string, len(t.widths))
	for i, w := range t.widths {
		sep[i] = strings.Repeat("─", w)
	}
	t.w.Println("%s", strings.Join(sep, "─┼─"))

	for _, row := range t.rows {
		t.w.Println("%s", t.line(row))
	}
}

func (t *Table) line(cells []string) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		pad := strings.Repeat(" ", t.widths[i]-utf8.RuneCountInString(c))
		if t.align[i] == AlignRight {
			parts[i] = pad + c
		} else {
			parts[i] = c + pad
		}
	}
	return strings.TrimRight(strings.Join(parts, " │ "), " ")
}

// RunSummary renders the outcome of a pipeline run
type RunSummary struct {
	w             *Writer
	RunID         string
	Fingerprint   string
	Records       int
	Rows          int
	Skipped       int
	SpendFallback int
	RateWarnings  int
	Output        string

	// Stages are shown at verbosity 2.
	Stages []Stage
}

// Stage is one timed step of a run.
type Stage struct {
	Name     string
	Duration time.Duration
}

// NewRunSummary creates a run summary
func (w *Writer) NewRunSummary() *RunSummary {
	return &RunSummary{w: w}
}

// Render prints the run summary
func (s *RunSummary) Render() {
	if s.w.verbosity < 1 {
		return
	}
	s.w.Header("P&L Waterfall")

	s.w.Success("%d records → %d rows", s.Records, s.Rows)
	if s.Output != "" {
		s.w.Println("%s", s.w.color(Dim, "  Output:      "+s.Output))
	}
	s.w.Println("%s", s.w.color(Dim, "  Run ID:      "+s.RunID))
	s.w.Println("%s", s.w.color(Dim, "  Fingerprint: "+s.Fingerprint))

	if s.Skipped > 0 {
		s.w.Warning("%d records skipped", s.Skipped)
	}
	if s.SpendFallback > 0 {
		s.w.Warning("%d records had no trade spend (zero rates used)", s.SpendFallback)
	}
	if s.RateWarnings > 0 {
		s.w.Warning("%d rates outside [0, 1]", s.RateWarnings)
	}
	for _, st := range s.Stages {
		s.w.Debug("%-10s %s", st.Name, st.Duration.Round(time.Microsecond))
	}
}
