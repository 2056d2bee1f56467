// Package types holds the data model shared by the reference index, the
// waterfall calculator, the pivot formatter and the report sinks.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// VolumeRecord is one row of historical sales volume.
type VolumeRecord struct {
	Year          int             `json:"year"`
	Category      string          `json:"category"`
	EAN           string          `json:"ean"`
	ChannelClient string          `json:"channel_client"`
	Account       string          `json:"account"`
	Units         decimal.Decimal `json:"units"`

	// Line is the 1-based source line, zero when the record was not read from a file.
	Line int `json:"line,omitempty"`
}

// SpendKey returns the trade-spend join key.
func (r VolumeRecord) SpendKey() SpendKey {
	return SpendKey{Year: r.Year, ChannelClient: r.ChannelClient}
}

// Dimensions returns the grouping columns carried to every output row.
func (r VolumeRecord) Dimensions() Dimensions {
	return Dimensions{
		Year:          r.Year,
		Category:      r.Category,
		EAN:           r.EAN,
		ChannelClient: r.ChannelClient,
		Account:       r.Account,
	}
}

// String identifies the record in errors and logs.
func (r VolumeRecord) String() string {
	return fmt.Sprintf("%d/%s/%s/%s", r.Year, r.EAN, r.ChannelClient, r.Account)
}

// PricingCostEntry is list price and standard cost per unit for (Year, EAN).
// An entry with a ChannelClient applies to that channel only; one without
// applies to every channel that has no entry of its own.
type PricingCostEntry struct {
	Year          int             `json:"year"`
	EAN           string          `json:"ean"`
	ChannelClient string          `json:"channel_client,omitempty"`
	ListPrice     decimal.Decimal `json:"list_price"`
	StandardCost  decimal.Decimal `json:"standard_cost"`

	// OffInvoiceRate is a price-level off-invoice (GTG) rate, a fraction of
	// gross sales. It is added to the trade-spend off-invoice rate.
	OffInvoiceRate decimal.Decimal `json:"off_invoice_rate"`
}

// Key returns the entry's index key.
func (e PricingCostEntry) Key() PriceKey {
	return PriceKey{Year: e.Year, EAN: e.EAN, ChannelClient: e.ChannelClient}
}

// TradeSpendEntry holds the trade-spend rates for (Year, ChannelClient).
// Rates are fractions of gross sales.
type TradeSpendEntry struct {
	Year           int             `json:"year"`
	ChannelClient  string          `json:"channel_client"`
	OffInvoiceRate decimal.Decimal `json:"off_invoice_rate"`
	AgreementsRate decimal.Decimal `json:"agreements_rate"`
	ActivitiesRate decimal.Decimal `json:"activities_rate"`
}

// Key returns the entry's index key.
func (e TradeSpendEntry) Key() SpendKey {
	return SpendKey{Year: e.Year, ChannelClient: e.ChannelClient}
}

// ZeroSpend is the entry used when no trade spend is recorded for a key.
func ZeroSpend(key SpendKey) TradeSpendEntry {
	return TradeSpendEntry{
		Year:           key.Year,
		ChannelClient:  key.ChannelClient,
		OffInvoiceRate: decimal.Zero,
		AgreementsRate: decimal.Zero,
		ActivitiesRate: decimal.Zero,
	}
}

// PriceKey identifies a pricing/cost entry. An empty ChannelClient
// matches any channel.
type PriceKey struct {
	Year          int
	EAN           string
	ChannelClient string
}

func (k PriceKey) String() string {
	if k.ChannelClient == "" {
		return fmt.Sprintf("(%d, %s)", k.Year, k.EAN)
	}
	return fmt.Sprintf("(%d, %s, %s)", k.Year, k.EAN, k.ChannelClient)
}

// SpendKey identifies a trade-spend entry.
type SpendKey struct {
	Year          int
	ChannelClient string
}

func (k SpendKey) String() string {
	return fmt.Sprintf("(%d, %s)", k.Year, k.ChannelClient)
}

// Tables are the three fully materialized pipeline inputs.
type Tables struct {
	Volume     []VolumeRecord
	Pricing    []PricingCostEntry
	TradeSpend []TradeSpendEntry
}
