// Package pivot reshapes wide waterfall results into long report rows.
package pivot

import (
	"fmt"

	"github.com/samber/lo"

	"profit-engine/core/types"
)

// Selection is a validated set of metrics in canonical display order.
type Selection []types.Metric

// Default is the four-metric reporting set.
func Default() Selection {
	return Selection(append([]types.Metric(nil), types.ReportedMetrics...))
}

// Select validates metrics and orders them canonically. An empty input
// selects the default set; repeats and unknown metrics are errors.
func Select(metrics []types.Metric) (Selection, error) {
	if len(metrics) == 0 {
		return Default(), nil
	}
	if dups := lo.FindDuplicates(metrics); len(dups) > 0 {
		return nil, fmt.Errorf("metric %v selected more than once", dups[0])
	}
	for _, m := range metrics {
		if !lo.Contains(types.CanonicalMetrics, m) {
			return nil, fmt.Errorf("unknown metric %v", m)
		}
	}
	return Selection(lo.Filter(types.CanonicalMetrics, func(m types.Metric, _ int) bool {
		return lo.Contains(metrics, m)
	})), nil
}

// ParseSelection parses metric names and validates them with Select.
func ParseSelection(names []string) (Selection, error) {
	metrics := make([]types.Metric, 0, len(names))
	for _, n := range names {
		m, err := types.ParseMetric(n)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return Select(metrics)
}

// Pivot emits one row per selected metric, in selection order, all sharing
// the result's dimensions.
func Pivot(res types.WaterfallResult, sel Selection) []types.OutputRow {
	return lo.Map(sel, func(m types.Metric, _ int) types.OutputRow {
		return types.OutputRow{
			Dimensions: res.Dimensions,
			Metric:     m,
			Value:      res.Value(m),
		}
	})
}
