package pivot

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"profit-engine/core/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sample() types.WaterfallResult {
	return types.WaterfallResult{
		Dimensions:  types.Dimensions{Year: 2024, Category: "Soap", EAN: "X1", ChannelClient: "C1", Account: "Acme"},
		Units:       d("10"),
		GrossSales:  d("100"),
		NetShipment: d("90"),
		NTS:         d("80"),
		COGS:        d("50"),
		GrossProfit: d("30"),
	}
}

func TestPivotDefaultSet(t *testing.T) {
	res := sample()
	rows := Pivot(res, Default())

	require.Len(t, rows, 4)
	wantMetrics := []types.Metric{
		types.MetricGrossSales, types.MetricNetShipment, types.MetricNetTotalSales, types.MetricGrossProfit,
	}
	wantValues := []string{"100", "90", "80", "30"}
	for i, row := range rows {
		require.Equal(t, res.Dimensions, row.Dimensions)
		require.Equal(t, wantMetrics[i], row.Metric)
		require.Truef(t, row.Value.Equal(d(wantValues[i])), "row %d: %s", i, row.Value)
	}
}

func TestSelectOrdersCanonically(t *testing.T) {
	sel, err := Select([]types.Metric{types.MetricGrossProfit, types.MetricCOGS, types.MetricUnits})
	require.NoError(t, err)
	require.Equal(t, Selection{types.MetricUnits, types.MetricCOGS, types.MetricGrossProfit}, sel)

	rows := Pivot(sample(), sel)
	require.Len(t, rows, 3)
	require.Equal(t, "10", rows[0].Value.String())
	require.Equal(t, "50", rows[1].Value.String())
}

func TestSelectRejectsRepeatsAndUnknown(t *testing.T) {
	_, err := Select([]types.Metric{types.MetricCOGS, types.MetricCOGS})
	require.Error(t, err)

	_, err = Select([]types.Metric{types.Metric(42)})
	require.Error(t, err)
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection([]string{"nts", "Gross Sales"})
	require.NoError(t, err)
	require.Equal(t, Selection{types.MetricGrossSales, types.MetricNetTotalSales}, sel)

	sel, err = ParseSelection(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), sel)

	_, err = ParseSelection([]string{"margin"})
	require.Error(t, err)
}

func TestPivotIsStable(t *testing.T) {
	a := Pivot(sample(), Default())
	b := Pivot(sample(), Default())
	require.Equal(t, a, b)
}
