// Package reference builds the lookup index over pricing/cost and
// trade-spend reference data.
//
// An Index is immutable once Build returns and may be shared by any number
// of concurrent readers.
package reference

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"profit-engine/core/types"
	"profit-engine/internal/errors"
	"profit-engine/internal/logging"
)

// DuplicatePolicy decides what Build does with two rows sharing a key.
type DuplicatePolicy string

const (
	// DuplicateReject fails the build with a DUPLICATE_KEY error.
	DuplicateReject DuplicatePolicy = "reject"

	// DuplicateLastWins keeps the last row seen and logs a warning.
	DuplicateLastWins DuplicatePolicy = "last-wins"
)

// ParseDuplicatePolicy accepts "reject" or "last-wins".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicateReject:
		return DuplicateReject, nil
	case DuplicateLastWins, "last":
		return DuplicateLastWins, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// Options configures Build.
type Options struct {
	Duplicates DuplicatePolicy
}

// Index resolves a volume record's join keys to reference entries.
type Index struct {
	prices map[types.PriceKey]types.PricingCostEntry
	spend  map[types.SpendKey]types.TradeSpendEntry
	log    *zap.Logger
}

// Build indexes the pricing/cost and trade-spend tables.
func Build(pricing []types.PricingCostEntry, spend []types.TradeSpendEntry, opts Options) (*Index, error) {
	policy := opts.Duplicates
	if policy == "" {
		policy = DuplicateReject
	}

	idx := &Index{
		prices: make(map[types.PriceKey]types.PricingCostEntry, len(pricing)),
		spend:  make(map[types.SpendKey]types.TradeSpendEntry, len(spend)),
		log:    logging.Named("reference"),
	}

	for _, e := range pricing {
		k := e.Key()
		if _, dup := idx.prices[k]; dup {
			if policy == DuplicateReject {
				return nil, errors.DuplicateKey("pricing/cost", k.String())
			}
			idx.log.Warn("duplicate pricing/cost entry, keeping last",
				zap.Int("year", k.Year), zap.String("ean", k.EAN), zap.String("channel_client", k.ChannelClient))
		}
		idx.prices[k] = e
	}

	for _, e := range spend {
		k := e.Key()
		if _, dup := idx.spend[k]; dup {
			if policy == DuplicateReject {
				return nil, errors.DuplicateKey("trade-spend", k.String())
			}
			idx.log.Warn("duplicate trade-spend entry, keeping last",
				zap.Int("year", k.Year), zap.String("channel_client", k.ChannelClient))
		}
		idx.spend[k] = e
	}

	idx.log.Debug("reference index built",
		zap.Int("prices", len(idx.prices)), zap.Int("trade_spend", len(idx.spend)))
	return idx, nil
}

// Price returns the pricing/cost entry for (year, ean) as sold through
// channelClient. A channel-specific entry is preferred over one without a
// channel. There is no other fallback: a missing entry is a MISSING_PRICE
// error.
func (idx *Index) Price(year int, ean, channelClient string) (types.PricingCostEntry, error) {
	k := types.PriceKey{Year: year, EAN: ean, ChannelClient: channelClient}
	if e, ok := idx.prices[k]; ok {
		return e, nil
	}
	k.ChannelClient = ""
	if e, ok := idx.prices[k]; ok {
		return e, nil
	}
	return types.PricingCostEntry{}, errors.MissingPrice(year, ean)
}

// TradeSpend returns the trade-spend entry for (year, channelClient). When
// none is recorded it returns a zero-rate entry and false.
func (idx *Index) TradeSpend(year int, channelClient string) (types.TradeSpendEntry, bool) {
	k := types.SpendKey{Year: year, ChannelClient: channelClient}
	if e, ok := idx.spend[k]; ok {
		return e, true
	}
	idx.log.Debug("no trade spend recorded, using zero rates",
		zap.Int("year", year), zap.String("channel_client", channelClient))
	return types.ZeroSpend(k), false
}

// Len reports how many pricing and trade-spend keys are indexed.
func (idx *Index) Len() (prices, spend int) {
	return len(idx.prices), len(idx.spend)
}
