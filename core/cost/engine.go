// Package cost computes the P&L waterfall for a single volume record.
// It has no state and no side effects.
package cost

import (
	"github.com/shopspring/decimal"

	"profit-engine/core/types"
	"profit-engine/internal/errors"
)

var one = decimal.NewFromInt(1)

// Calculate runs the five waterfall stages for rec, in order:
//
//	GrossSales  = Units × ListPrice
//	NetShipment = GrossSales − GrossSales × OffInvoiceRate
//	NTS         = NetShipment − GrossSales × AgreementsRate − GrossSales × ActivitiesRate
//	COGS        = Units × StandardCost
//	GrossProfit = NTS − COGS
//
// OffInvoiceRate is the trade-spend rate plus the price entry's own
// off-invoice rate. Agreements and activities are charged against
// GrossSales, not against NetShipment. Nothing is rounded here.
func Calculate(rec types.VolumeRecord, price types.PricingCostEntry, spend types.TradeSpendEntry) (types.WaterfallResult, error) {
	if err := validate(rec, price); err != nil {
		return types.WaterfallResult{}, err
	}

	grossSales := rec.Units.Mul(price.ListPrice)
	offInvoice := grossSales.Mul(spend.OffInvoiceRate.Add(price.OffInvoiceRate))
	netShipment := grossSales.Sub(offInvoice)

	agreements := grossSales.Mul(spend.AgreementsRate)
	activities := grossSales.Mul(spend.ActivitiesRate)
	nts := netShipment.Sub(agreements).Sub(activities)

	cogs := rec.Units.Mul(price.StandardCost)
	grossProfit := nts.Sub(cogs)

	return types.WaterfallResult{
		Dimensions:   rec.Dimensions(),
		Units:        rec.Units,
		GrossSales:   grossSales,
		NetShipment:  netShipment,
		NTS:          nts,
		COGS:         cogs,
		GrossProfit:  grossProfit,
		RateWarnings: rateWarnings(price, spend),
	}, nil
}

func validate(rec types.VolumeRecord, price types.PricingCostEntry) error {
	key := rec.String()
	if rec.Units.IsNegative() {
		return errors.InvalidInput("Units", rec.Units.String(), key)
	}
	if price.ListPrice.IsNegative() {
		return errors.InvalidInput("ListPrice", price.ListPrice.String(), key)
	}
	if price.StandardCost.IsNegative() {
		return errors.InvalidInput("StandardCost", price.StandardCost.String(), key)
	}
	return nil
}

// rateWarnings flags rates outside [0,1]. They are still applied as given;
// trade-spend data can carry legitimate negative adjustments.
func rateWarnings(price types.PricingCostEntry, spend types.TradeSpendEntry) []string {
	var out []string
	for _, r := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"PriceOffInvoiceRate", price.OffInvoiceRate},
		{"OffInvoiceRate", spend.OffInvoiceRate},
		{"AgreementsRate", spend.AgreementsRate},
		{"ActivitiesRate", spend.ActivitiesRate},
	} {
		if r.v.IsNegative() || r.v.GreaterThan(one) {
			out = append(out, r.name+"="+r.v.String())
		}
	}
	return out
}
