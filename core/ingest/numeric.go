package ingest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

var numericScrubber = strings.NewReplacer("$", "", "\u20ac", "", "\u00a3", "", ",", "", "%", "", " ", "", "\u00a0", "")

// parseAmount parses a number that may carry currency symbols, thousands
// separators or a percent sign. Accounting negatives "(12.50)" are accepted.
func parseAmount(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty value")
	}
	neg := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		neg = true
		raw = raw[1 : len(raw)-1]
	}
	v, err := decimal.NewFromString(numericScrubber.Replace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}
	if neg {
		v = v.Neg()
	}
	return v, nil
}

// parseRate parses a rate. Values from a percent column, or written with a
// trailing "%", are divided by 100; anything else is taken as a fraction.
func parseRate(s string, percentColumn bool) (decimal.Decimal, error) {
	v, err := parseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if percentColumn || strings.HasSuffix(strings.TrimSpace(s), "%") {
		v = v.Div(hundred)
	}
	return v, nil
}

// parseYear accepts "2024" and spreadsheet-style "2024.0".
func parseYear(s string) (int, error) {
	v, err := parseAmount(s)
	if err != nil {
		return 0, err
	}
	if !v.IsInteger() {
		return 0, fmt.Errorf("year is not a whole number: %q", s)
	}
	return int(v.IntPart()), nil
}
