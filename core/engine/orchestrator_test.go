package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"profit-engine/core/pivot"
	"profit-engine/core/reference"
	"profit-engine/core/types"
	"profit-engine/internal/config"
	"profit-engine/internal/errors"
	"profit-engine/internal/logging"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func vol(year int, ean, cc, units string) types.VolumeRecord {
	return types.VolumeRecord{Year: year, Category: "Soap", EAN: ean, ChannelClient: cc, Account: "Acme", Units: d(units)}
}

func baseTables() types.Tables {
	return types.Tables{
		Volume: []types.VolumeRecord{vol(2024, "X1", "C1", "10")},
		Pricing: []types.PricingCostEntry{
			{Year: 2024, EAN: "X1", ListPrice: d("5"), StandardCost: d("2")},
		},
		TradeSpend: []types.TradeSpendEntry{
			{Year: 2024, ChannelClient: "C1", OffInvoiceRate: d("0.1"), AgreementsRate: d("0.05"), ActivitiesRate: d("0.05")},
		},
	}
}

func values(rows []types.OutputRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Value.String()
	}
	return out
}

func TestRunEndToEnd(t *testing.T) {
	report, err := NewOrchestrator(Options{}).Run(context.Background(), baseTables())
	require.NoError(t, err)

	require.Equal(t, []string{"50", "45", "40", "20"}, values(report.Rows))
	for i, m := range []types.Metric{
		types.MetricGrossSales, types.MetricNetShipment, types.MetricNetTotalSales, types.MetricGrossProfit,
	} {
		require.Equal(t, m, report.Rows[i].Metric)
		require.Equal(t, types.Dimensions{Year: 2024, Category: "Soap", EAN: "X1", ChannelClient: "C1", Account: "Acme"}, report.Rows[i].Dimensions)
	}
	require.Equal(t, 1, report.Stats.Records)
	require.Equal(t, 4, report.Stats.Rows)
	require.Zero(t, report.Stats.SpendFallback)
	require.True(t, report.Stats.Totals[types.MetricGrossProfit].Equal(d("20")))
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.Fingerprint, 64)
}

func TestRunWithCOGS(t *testing.T) {
	sel, err := pivot.Select([]types.Metric{types.MetricGrossSales, types.MetricCOGS})
	require.NoError(t, err)

	report, err := NewOrchestrator(Options{Metrics: sel}).Run(context.Background(), baseTables())
	require.NoError(t, err)
	require.Equal(t, []string{"50", "20"}, values(report.Rows))
}

func TestRunMissingPriceFailsFast(t *testing.T) {
	tables := baseTables()
	tables.Volume = append(tables.Volume, vol(2025, "Y9", "C1", "3"), vol(2024, "X1", "C1", "1"))

	report, err := NewOrchestrator(Options{}).Run(context.Background(), tables)
	require.Nil(t, report)
	require.True(t, errors.IsType(err, errors.TypeMissingPrice))

	e, _ := errors.As(err)
	require.Equal(t, 2025, e.Context["year"])
	require.Equal(t, "Y9", e.Context["ean"])
}

func TestRunInvalidInputFailsFast(t *testing.T) {
	tables := baseTables()
	tables.Volume = append(tables.Volume, vol(2024, "X1", "C1", "-2"))

	report, err := NewOrchestrator(Options{}).Run(context.Background(), tables)
	require.Nil(t, report)
	require.True(t, errors.IsType(err, errors.TypeInvalidInput))
}

func TestRunDuplicatePricingFails(t *testing.T) {
	tables := baseTables()
	tables.Pricing = append(tables.Pricing, tables.Pricing[0])

	_, err := NewOrchestrator(Options{}).Run(context.Background(), tables)
	require.True(t, errors.IsType(err, errors.TypeDuplicateKey))

	_, err = NewOrchestrator(Options{Duplicates: reference.DuplicateLastWins}).Run(context.Background(), tables)
	require.NoError(t, err)
}

func TestRunMissingTradeSpendUsesZeroRates(t *testing.T) {
	prev := logging.Logger
	t.Cleanup(func() { logging.SetLogger(prev) })
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))

	tables := baseTables()
	tables.TradeSpend = nil

	report, err := NewOrchestrator(Options{}).Run(context.Background(), tables)
	require.NoError(t, err)

	require.Equal(t, []string{"50", "50", "50", "30"}, values(report.Rows))
	require.True(t, report.Rows[1].Value.Equal(report.Rows[2].Value), "NTS equals NetShipment")
	require.Equal(t, 1, report.Stats.SpendFallback)
	require.Equal(t, 1, logs.FilterMessage("no trade spend recorded, using zero rates").Len())
}

func TestRunSkipAndReport(t *testing.T) {
	tables := baseTables()
	tables.Volume = []types.VolumeRecord{
		vol(2024, "X1", "C1", "10"),
		vol(2024, "NOPE", "C1", "1"),
		vol(2024, "X1", "C1", "-1"),
		vol(2024, "X1", "C2", "2"),
	}
	for i := range tables.Volume {
		tables.Volume[i].Line = i + 2
	}

	report, err := NewOrchestrator(Options{Mode: SkipAndReport}).Run(context.Background(), tables)
	require.NoError(t, err)

	require.Equal(t, 4, report.Stats.Records)
	require.Equal(t, 2, report.Stats.Skipped)
	require.Equal(t, 8, report.Stats.Rows)
	require.Equal(t, 1, report.Skipped[0].Index)
	require.Equal(t, 3, report.Skipped[0].Line)
	require.True(t, errors.IsType(report.Skipped[0].Err, errors.TypeMissingPrice))
	require.Contains(t, report.Skipped[0].Reason, "MISSING_PRICE")
	require.Equal(t, 2, report.Skipped[1].Index)
	require.Equal(t, 4, report.Skipped[1].Line)
	require.True(t, errors.IsType(report.Skipped[1].Err, errors.TypeInvalidInput))
	require.Equal(t, "C2", report.Rows[4].ChannelClient)
}

func TestRunIsIdempotent(t *testing.T) {
	tables := bigTables(50)

	a, err := NewOrchestrator(Options{}).Run(context.Background(), tables)
	require.NoError(t, err)
	b, err := NewOrchestrator(Options{}).Run(context.Background(), tables)
	require.NoError(t, err)

	require.Equal(t, a.Rows, b.Rows)
	require.Equal(t, a.Fingerprint, b.Fingerprint)
	require.NotEqual(t, a.RunID, b.RunID)
}

func TestRunParallelKeepsOrder(t *testing.T) {
	tables := bigTables(200)

	seq, err := NewOrchestrator(Options{Workers: 1}).Run(context.Background(), tables)
	require.NoError(t, err)
	par, err := NewOrchestrator(Options{Workers: 8}).Run(context.Background(), tables)
	require.NoError(t, err)

	require.Equal(t, seq.Rows, par.Rows)
	require.Equal(t, seq.Fingerprint, par.Fingerprint)
}

func TestRunParallelReportsFirstFailure(t *testing.T) {
	tables := bigTables(100)
	tables.Volume[10].EAN = "MISSING-10"
	tables.Volume[60].EAN = "MISSING-60"

	_, err := NewOrchestrator(Options{Workers: 4}).Run(context.Background(), tables)
	require.True(t, errors.IsType(err, errors.TypeMissingPrice))
	e, _ := errors.As(err)
	require.Equal(t, "MISSING-10", e.Context["ean"])
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOrchestrator(Options{}).Run(ctx, bigTables(10))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyVolume(t *testing.T) {
	tables := baseTables()
	tables.Volume = nil

	report, err := NewOrchestrator(Options{}).Run(context.Background(), tables)
	require.NoError(t, err)
	require.Empty(t, report.Rows)
	require.True(t, report.Stats.Totals[types.MetricGrossSales].IsZero())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, FailFast, m)

	m, err = ParseMode("SKIP")
	require.NoError(t, err)
	require.Equal(t, SkipAndReport, m)

	_, err = ParseMode("retry")
	require.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.PipelineConfig{
		Mode:       "skip",
		Duplicates: "last-wins",
		Metrics:    []string{"units", "cogs"},
		Workers:    3,
		Currency:   "EUR",
	})
	require.NoError(t, err)
	require.Equal(t, SkipAndReport, opts.Mode)
	require.Equal(t, reference.DuplicateLastWins, opts.Duplicates)
	require.Equal(t, pivot.Selection{types.MetricUnits, types.MetricCOGS}, opts.Metrics)
	require.Equal(t, 3, opts.Workers)
	require.Equal(t, types.Currency("EUR"), opts.Currency)

	for _, bad := range []config.PipelineConfig{
		{Mode: "sometimes"},
		{Duplicates: "first-wins"},
		{Metrics: []string{"margin"}},
	} {
		_, err := OptionsFromConfig(bad)
		require.True(t, errors.IsType(err, errors.TypeConfig), bad)
	}
}

func bigTables(n int) types.Tables {
	tables := types.Tables{}
	for i := 0; i < n; i++ {
		ean := fmt.Sprintf("E%03d", i%7)
		tables.Volume = append(tables.Volume, vol(2024+i%2, ean, fmt.Sprintf("C%d", i%3), fmt.Sprintf("%d.5", i)))
	}
	for y := 2024; y <= 2025; y++ {
		for e := 0; e < 7; e++ {
			tables.Pricing = append(tables.Pricing, types.PricingCostEntry{
				Year: y, EAN: fmt.Sprintf("E%03d", e),
				ListPrice: d(fmt.Sprintf("%d.99", e+1)), StandardCost: d(fmt.Sprintf("%d.1", e)),
			})
		}
		tables.TradeSpend = append(tables.TradeSpend,
			types.TradeSpendEntry{Year: y, ChannelClient: "C0", OffInvoiceRate: d("0.07"), AgreementsRate: d("0.03"), ActivitiesRate: d("0.015")},
			types.TradeSpendEntry{Year: y, ChannelClient: "C1", OffInvoiceRate: d("0.1"), AgreementsRate: d("0.05"), ActivitiesRate: d("0")},
		)
	}
	return tables
}
