// Package types - Waterfall and report types
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code. Reports are single-currency.
type Currency string

const (
	CurrencyUSD Currency = "USD"
)

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// Dimensions are the grouping columns shared by all rows of one volume record.
type Dimensions struct {
	Year          int    `json:"year"`
	Category      string `json:"category"`
	EAN           string `json:"ean"`
	ChannelClient string `json:"channel_client"`
	Account       string `json:"account"`
}

// Metric names one line of the P&L waterfall.
type Metric int

const (
	MetricUnits Metric = iota
	MetricGrossSales
	MetricNetShipment
	MetricNetTotalSales
	MetricCOGS
	MetricGrossProfit
)

// CanonicalMetrics is the display order every report follows.
var CanonicalMetrics = []Metric{
	MetricUnits,
	MetricGrossSales,
	MetricNetShipment,
	MetricNetTotalSales,
	MetricCOGS,
	MetricGrossProfit,
}

// ReportedMetrics is the default reported set.
var ReportedMetrics = []Metric{
	MetricGrossSales,
	MetricNetShipment,
	MetricNetTotalSales,
	MetricGrossProfit,
}

var metricLabels = map[Metric]string{
	MetricUnits:         "Volume Units",
	MetricGrossSales:    "Gross Sales",
	MetricNetShipment:   "Net Shipment",
	MetricNetTotalSales: "Net Total Sales",
	MetricCOGS:          "COGS",
	MetricGrossProfit:   "Gross Profit",
}

// String returns the label used in report output.
func (m Metric) String() string {
	if l, ok := metricLabels[m]; ok {
		return l
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

// MarshalText renders the metric label.
func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMetric accepts a label ("Net Total Sales") or a short name
// ("nts", "net_total_sales"), case-insensitively.
func ParseMetric(s string) (Metric, error) {
	norm := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(s)))
	switch norm {
	case "units", "volume units", "volume":
		return MetricUnits, nil
	case "gross sales", "gs":
		return MetricGrossSales, nil
	case "net shipment", "ns":
		return MetricNetShipment, nil
	case "net total sales", "nts":
		return MetricNetTotalSales, nil
	case "cogs", "total cogs":
		return MetricCOGS, nil
	case "gross profit", "gp":
		return MetricGrossProfit, nil
	}
	return 0, fmt.Errorf("unknown metric %q", s)
}

// WaterfallResult is the wide, per-record outcome of the waterfall.
type WaterfallResult struct {
	Dimensions

	Units       decimal.Decimal `json:"units"`
	GrossSales  decimal.Decimal `json:"gross_sales"`
	NetShipment decimal.Decimal `json:"net_shipment"`
	NTS         decimal.Decimal `json:"net_total_sales"`
	COGS        decimal.Decimal `json:"cogs"`
	GrossProfit decimal.Decimal `json:"gross_profit"`

	// SpendFallback is set when no trade-spend entry matched and zero rates were used.
	SpendFallback bool `json:"spend_fallback,omitempty"`

	// RateWarnings lists rates outside [0,1] that were applied as given.
	RateWarnings []string `json:"rate_warnings,omitempty"`
}

// Value returns the field backing metric m.
func (r WaterfallResult) Value(m Metric) decimal.Decimal {
	switch m {
	case MetricUnits:
		return r.Units
	case MetricGrossSales:
		return r.GrossSales
	case MetricNetShipment:
		return r.NetShipment
	case MetricNetTotalSales:
		return r.NTS
	case MetricCOGS:
		return r.COGS
	case MetricGrossProfit:
		return r.GrossProfit
	}
	panic(fmt.Sprintf("types: no value for %v", m))
}

// OutputRow is one long-format report row.
type OutputRow struct {
	Dimensions

	Metric Metric          `json:"metric"`
	Value  decimal.Decimal `json:"value"`
}

// Columns is the report header, in column order.
var Columns = []string{"Year", "Category", "EAN", "ChannelClient", "Account", "Metric", "Value"}

// Record renders the row as strings in Columns order. Values are rounded
// to precision places; a negative precision keeps full precision.
func (r OutputRow) Record(precision int32) []string {
	value := r.Value.String()
	if precision >= 0 {
		value = r.Value.StringFixed(precision)
	}
	return []string{
		fmt.Sprintf("%d", r.Year),
		r.Category,
		r.EAN,
		r.ChannelClient,
		r.Account,
		r.Metric.String(),
		value,
	}
}

// SkippedRecord is a volume record left out of a skip-and-report run.
type SkippedRecord struct {
	Index  int          `json:"index"`
	Line   int          `json:"line,omitempty"`
	Record VolumeRecord `json:"record"`
	Reason string       `json:"reason"`
	Err    error        `json:"-"`
}

// RunStats summarizes a pipeline run.
type RunStats struct {
	Records       int `json:"records"`
	Rows          int `json:"rows"`
	Skipped       int `json:"skipped"`
	SpendFallback int `json:"spend_fallback"`
	RateWarnings  int `json:"rate_warnings"`

	// Totals sums each reported metric over all rows.
	Totals map[Metric]decimal.Decimal `json:"totals"`
}

// Report is the output of one pipeline run.
type Report struct {
	RunID       string          `json:"run_id"`
	Currency    Currency        `json:"currency"`
	Metrics     []Metric        `json:"metrics"`
	Rows        []OutputRow     `json:"rows"`
	Skipped     []SkippedRecord `json:"skipped,omitempty"`
	Stats       RunStats        `json:"stats"`
	Fingerprint string          `json:"fingerprint"`
}
