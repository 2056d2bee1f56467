// Package ingest reads the volume, pricing/cost and trade-spend CSV files
// into the engine's tables.
//
// Headers are matched loosely: a UTF-8 BOM is stripped, accents are removed
// and case, spacing and punctuation are ignored, so "EAN Code",
// "ean_code" and "EANCode" all name the same column. Numbers may carry
// currency symbols, thousands separators and percent signs.
package ingest

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// canonicalHeader folds a header cell to lowercase letters and digits.
func canonicalHeader(h string) string {
	h = strings.TrimPrefix(h, utf8BOM)
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, h)
	if err != nil {
		folded = h
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isPercentHeader reports whether a column holds percentages (0-100)
// rather than fractions.
func isPercentHeader(h string) bool {
	c := canonicalHeader(h)
	return strings.Contains(h, "%") || strings.Contains(c, "percent")
}

// column describes one logical input column and its accepted header names,
// already in canonical form.
type column struct {
	name     string
	aliases  []string
	required bool
}

// headerMap resolves logical columns to positions.
type headerMap struct {
	raw     []string
	file    string
	index   map[string]int
	percent map[string]bool
}

func mapHeader(file string, header []string, cols []column) (*headerMap, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		c := canonicalHeader(h)
		if _, seen := positions[c]; !seen {
			positions[c] = i
		}
	}

	hm := &headerMap{raw: header, file: file, index: make(map[string]int), percent: make(map[string]bool)}
	var missing []string
	for _, col := range cols {
		found := false
		for _, alias := range col.aliases {
			if i, ok := positions[alias]; ok {
				hm.index[col.name] = i
				hm.percent[col.name] = isPercentHeader(header[i])
				found = true
				break
			}
		}
		if !found && col.required {
			missing = append(missing, col.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing column(s) %s (header: %s)",
			file, strings.Join(missing, ", "), strings.Join(header, ", "))
	}
	return hm, nil
}

func (hm *headerMap) has(name string) bool {
	_, ok := hm.index[name]
	return ok
}

// get returns the trimmed cell for a logical column, or "" when the column
// is absent or the row is short.
func (hm *headerMap) get(row []string, name string) string {
	i, ok := hm.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
