package ingest

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"profit-engine/core/types"
	"profit-engine/internal/errors"
)

var volumeColumns = []column{
	{name: "Year", aliases: []string{"year"}, required: true},
	{name: "Category", aliases: []string{"category"}},
	{name: "EAN", aliases: []string{"ean", "eancode"}, required: true},
	{name: "ChannelClient", aliases: []string{"channelclient", "channel"}, required: true},
	{name: "Account", aliases: []string{"account", "customername", "customer", "client"}},
	{name: "Units", aliases: []string{"units", "volumeunits", "volume"}, required: true},
}

var pricingColumns = []column{
	{name: "Year", aliases: []string{"year"}, required: true},
	{name: "EAN", aliases: []string{"ean", "eancode"}, required: true},
	{name: "ListPrice", aliases: []string{"listprice", "price"}, required: true},
	{name: "StandardCost", aliases: []string{"standardcost", "stdcost", "cost"}, required: true},
	{name: "ChannelClient", aliases: []string{"channelclient", "channel"}},
	{name: "OffInvoiceRate", aliases: []string{"offinvoicerate", "offinvoice", "gtgrate", "gtg"}},
}

// Trade spend comes in two layouts. Wide has one column per rate; long has
// one row per (year, channel, type) with a percentage, summed per type.
var (
	spendWideColumns = []column{
		{name: "Year", aliases: []string{"year"}, required: true},
		{name: "ChannelClient", aliases: []string{"channelclient", "channel"}, required: true},
		{name: "OffInvoiceRate", aliases: []string{"offinvoicerate", "offinvoice", "gtgrate", "gtg"}},
		{name: "AgreementsRate", aliases: []string{"agreementsrate", "agreements", "agreement"}},
		{name: "ActivitiesRate", aliases: []string{"activitiesrate", "activities", "activity"}},
	}
	spendLongColumns = []column{
		{name: "Year", aliases: []string{"year"}, required: true},
		{name: "Category", aliases: []string{"category"}},
		{name: "ChannelClient", aliases: []string{"channelclient", "channel"}, required: true},
		{name: "Type", aliases: []string{"type", "spendtype"}, required: true},
		{name: "Percentage", aliases: []string{"percentage", "percent", "rate"}, required: true},
	}
)

// ReadVolume parses the volume actuals file.
func ReadVolume(r io.Reader, file string) ([]types.VolumeRecord, error) {
	t, err := readTable(r, file, volumeColumns)
	if err != nil {
		return nil, err
	}

	out := make([]types.VolumeRecord, 0, len(t.rows))
	for i, row := range t.rows {
		year, err := parseYear(t.header.get(row, "Year"))
		if err != nil {
			return nil, t.cellError(i, "Year", err)
		}
		units, err := parseAmount(t.header.get(row, "Units"))
		if err != nil {
			return nil, t.cellError(i, "Units", err)
		}
		ean := t.header.get(row, "EAN")
		if ean == "" {
			return nil, t.cellError(i, "EAN", fmt.Errorf("empty value"))
		}
		out = append(out, types.VolumeRecord{
			Year:          year,
			Category:      t.header.get(row, "Category"),
			EAN:           ean,
			ChannelClient: t.header.get(row, "ChannelClient"),
			Account:       t.header.get(row, "Account"),
			Units:         units,
			Line:          t.lines[i],
		})
	}
	return out, nil
}

// ReadPricing parses the pricing/cost file. Channel and off-invoice (GTG)
// columns are optional: a row without a channel prices every channel, and
// a missing or blank rate is zero.
func ReadPricing(r io.Reader, file string) ([]types.PricingCostEntry, error) {
	t, err := readTable(r, file, pricingColumns)
	if err != nil {
		return nil, err
	}

	out := make([]types.PricingCostEntry, 0, len(t.rows))
	for i, row := range t.rows {
		year, err := parseYear(t.header.get(row, "Year"))
		if err != nil {
			return nil, t.cellError(i, "Year", err)
		}
		ean := t.header.get(row, "EAN")
		if ean == "" {
			return nil, t.cellError(i, "EAN", fmt.Errorf("empty value"))
		}
		list, err := parseAmount(t.header.get(row, "ListPrice"))
		if err != nil {
			return nil, t.cellError(i, "ListPrice", err)
		}
		std, err := parseAmount(t.header.get(row, "StandardCost"))
		if err != nil {
			return nil, t.cellError(i, "StandardCost", err)
		}
		off := decimal.Zero
		if cell := t.header.get(row, "OffInvoiceRate"); cell != "" {
			off, err = parseRate(cell, t.header.percent["OffInvoiceRate"])
			if err != nil {
				return nil, t.cellError(i, "OffInvoiceRate", err)
			}
		}
		out = append(out, types.PricingCostEntry{
			Year:           year,
			EAN:            ean,
			ChannelClient:  t.header.get(row, "ChannelClient"),
			ListPrice:      list,
			StandardCost:   std,
			OffInvoiceRate: off,
		})
	}
	return out, nil
}

// ReadTradeSpend parses the trade-spend file in either layout. A file with
// Type and Percentage columns is read as the long layout.
func ReadTradeSpend(r io.Reader, file string) ([]types.TradeSpendEntry, error) {
	t, err := readTable(r, file, spendLongColumns[:1])
	if err != nil {
		return nil, err
	}
	// Re-map against the full column sets now that the header is known.
	if long, err := t.remap(spendLongColumns); err == nil {
		return long.readLongSpend()
	}
	wide, err := t.remap(spendWideColumns)
	if err != nil {
		return nil, errors.Parsing("map columns", err).WithContext("file", file)
	}
	if !wide.header.has("OffInvoiceRate") && !wide.header.has("AgreementsRate") && !wide.header.has("ActivitiesRate") {
		return nil, errors.Parsing(file+": no trade-spend rate columns", nil).WithContext("file", file)
	}
	return wide.readWideSpend()
}

func (t *table) remap(cols []column) (*table, error) {
	hm, err := mapHeader(t.file, t.header.raw, cols)
	if err != nil {
		return nil, err
	}
	return &table{file: t.file, header: hm, rows: t.rows, lines: t.lines}, nil
}

func (t *table) readWideSpend() ([]types.TradeSpendEntry, error) {
	out := make([]types.TradeSpendEntry, 0, len(t.rows))
	for i, row := range t.rows {
		year, err := parseYear(t.header.get(row, "Year"))
		if err != nil {
			return nil, t.cellError(i, "Year", err)
		}
		e := types.TradeSpendEntry{Year: year, ChannelClient: t.header.get(row, "ChannelClient")}
		for _, f := range []struct {
			col string
			dst *decimal.Decimal
		}{
			{"OffInvoiceRate", &e.OffInvoiceRate},
			{"AgreementsRate", &e.AgreementsRate},
			{"ActivitiesRate", &e.ActivitiesRate},
		} {
			cell := t.header.get(row, f.col)
			if cell == "" {
				continue
			}
			v, err := parseRate(cell, t.header.percent[f.col])
			if err != nil {
				return nil, t.cellError(i, f.col, err)
			}
			*f.dst = v
		}
		out = append(out, e)
	}
	return out, nil
}

// spendType classifies a long-layout Type cell.
func spendType(s string) (string, error) {
	switch canonicalHeader(s) {
	case "offinvoice", "offinvoicegtg", "gtg", "offinvoicerate":
		return "OffInvoiceRate", nil
	case "agreement", "agreements", "agreementsrate":
		return "AgreementsRate", nil
	case "activity", "activities", "activitiesrate":
		return "ActivitiesRate", nil
	}
	return "", fmt.Errorf("unknown trade-spend type %q", s)
}

// readLongSpend sums percentages per (year, channel, type). Rows for the
// same key under different categories are rejected: the index is keyed by
// channel only and cannot tell them apart.
func (t *table) readLongSpend() ([]types.TradeSpendEntry, error) {
	byKey := make(map[types.SpendKey]*types.TradeSpendEntry)
	category := make(map[types.SpendKey]string)
	var order []types.SpendKey

	for i, row := range t.rows {
		year, err := parseYear(t.header.get(row, "Year"))
		if err != nil {
			return nil, t.cellError(i, "Year", err)
		}
		kind, err := spendType(t.header.get(row, "Type"))
		if err != nil {
			return nil, t.cellError(i, "Type", err)
		}
		v, err := parseRate(t.header.get(row, "Percentage"), t.header.percent["Percentage"])
		if err != nil {
			return nil, t.cellError(i, "Percentage", err)
		}

		k := types.SpendKey{Year: year, ChannelClient: t.header.get(row, "ChannelClient")}
		cat := t.header.get(row, "Category")
		e, ok := byKey[k]
		if !ok {
			e = &types.TradeSpendEntry{Year: k.Year, ChannelClient: k.ChannelClient}
			byKey[k] = e
			category[k] = cat
			order = append(order, k)
		} else if category[k] != cat {
			return nil, errors.DuplicateKey("trade-spend", fmt.Sprintf("%s across categories %q and %q", k, category[k], cat)).
				WithContext("file", t.file).
				WithContext("line", t.lines[i])
		}

		switch kind {
		case "OffInvoiceRate":
			e.OffInvoiceRate = e.OffInvoiceRate.Add(v)
		case "AgreementsRate":
			e.AgreementsRate = e.AgreementsRate.Add(v)
		case "ActivitiesRate":
			e.ActivitiesRate = e.ActivitiesRate.Add(v)
		}
	}

	out := make([]types.TradeSpendEntry, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out, nil
}
