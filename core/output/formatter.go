// Package output renders a pipeline report in human and machine-readable
// formats.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"profit-engine/core/types"
)

// Format represents output format type
type Format string

const (
	// FormatCSV is the long-format report, one metric per row
	FormatCSV Format = "csv"

	// FormatJSON is machine-readable JSON with run metadata
	FormatJSON Format = "json"

	// FormatXLSX is an Excel workbook with data and summary sheets
	FormatXLSX Format = "xlsx"

	// FormatTable is a human-readable terminal table
	FormatTable Format = "table"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render writes the report to w
	Render(w io.Writer, report *types.Report) error
}

// Options control value rendering shared by all formatters.
type Options struct {
	// Precision is the number of decimal places for values; negative keeps
	// full precision.
	Precision int32

	// NoColor disables ANSI colors in the table format.
	NoColor bool
}

// DefaultOptions rounds to cents.
func DefaultOptions() Options {
	return Options{Precision: 2}
}

// Registry maps formats to formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[Format]Formatter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{formatters: make(map[Format]Formatter)}
}

// DefaultRegistry returns a registry holding every built-in format.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	for _, f := range []Formatter{
		NewCSVFormatter(opts),
		NewJSONFormatter(opts),
		NewXLSXFormatter(opts),
		NewTableFormatter(opts),
	} {
		_ = r.Register(f)
	}
	return r
}

// Register adds a formatter. Registering a format twice is an error.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.formatters[f.Format()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Format())
	}
	r.formatters[f.Format()] = f
	return nil
}

// Get returns the formatter for a format name, case-insensitively.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formatters[Format(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %s)", name, strings.Join(r.names(), ", "))
	}
	return f, nil
}

// Formats lists registered formats in sorted order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.formatters))
	for f := range r.formatters {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// formatValue rounds v to precision places; negative keeps full precision.
func formatValue(v decimal.Decimal, precision int32) string {
	if precision < 0 {
		return v.String()
	}
	return v.StringFixed(precision)
}
