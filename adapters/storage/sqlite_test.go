package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"profit-engine/core/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string, gs string, created time.Time) *StoredRun {
	dims := types.Dimensions{Year: 2024, Category: "Soap", EAN: "X1", ChannelClient: "C1", Account: "Acme"}
	value := decimal.RequireFromString(gs)
	return &StoredRun{
		ID:          id,
		CreatedAt:   created,
		Fingerprint: "fp-" + gs,
		Metrics:     []types.Metric{types.MetricGrossSales, types.MetricGrossProfit},
		Stats: types.RunStats{
			Records: 1,
			Rows:    2,
			Totals: map[types.Metric]decimal.Decimal{
				types.MetricGrossSales:  value,
				types.MetricGrossProfit: decimal.RequireFromString("0.1234567"),
			},
		},
		Rows: []types.OutputRow{
			{Dimensions: dims, Metric: types.MetricGrossSales, Value: value},
			{Dimensions: dims, Metric: types.MetricGrossProfit, Value: decimal.RequireFromString("0.1234567")},
		},
		Metadata: map[string]string{"volume": "Vol.csv"},
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var on int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
	require.Equal(t, 1, on)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_totals (run_id, metric, value) VALUES ('no-such-run', 'Gross Sales', '1')")
	require.Error(t, err)
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	in := sampleRun("run-1", "50", time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC))
	require.NoError(t, s.Save(ctx, in))

	out, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "run-1", out.ID)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.Fingerprint, out.Fingerprint)
	require.Equal(t, in.Metrics, out.Metrics)
	require.Equal(t, 2, out.Stats.Rows)
	require.Equal(t, "Vol.csv", out.Metadata["volume"])

	require.Len(t, out.Rows, 2)
	require.Equal(t, in.Rows[0].Dimensions, out.Rows[0].Dimensions)
	require.Equal(t, types.MetricGrossProfit, out.Rows[1].Metric)
	require.Equal(t, "0.1234567", out.Rows[1].Value.String())
	require.Equal(t, "50", out.Stats.Totals[types.MetricGrossSales].String())
}

func TestSaveAssignsID(t *testing.T) {
	s := openTestStore(t)
	run := sampleRun("", "1", time.Time{})
	require.NoError(t, s.Save(context.Background(), run))
	require.NotEmpty(t, run.ID)
	require.False(t, run.CreatedAt.IsZero())
}

func TestSaveDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Save(ctx, sampleRun("dup", "1", time.Now())))
	require.Error(t, s.Save(ctx, sampleRun("dup", "2", time.Now())))

	// The failed save left nothing behind.
	out, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	require.Equal(t, "fp-1", out.Fingerprint)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetLatest(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAndLatest(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleRun("a", "10", base)))
	require.NoError(t, s.Save(ctx, sampleRun("c", "30", base.Add(2*time.Hour))))
	require.NoError(t, s.Save(ctx, sampleRun("b", "20", base.Add(time.Hour))))

	runs, err := s.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, []string{"c", "b", "a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	require.Empty(t, runs[0].Rows)
	require.Equal(t, "30", runs[0].Stats.Totals[types.MetricGrossSales].String())

	runs, err = s.List(ctx, &ListFilter{Since: base.Add(30 * time.Minute), Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "c", runs[0].ID)

	latest, err := s.GetLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, "c", latest.ID)
	require.Len(t, latest.Rows, 2)
}

func TestCompare(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Save(ctx, sampleRun("old", "40", time.Now())))
	require.NoError(t, s.Save(ctx, sampleRun("new", "50", time.Now())))

	res, err := s.Compare(ctx, "old", "new")
	require.NoError(t, err)
	require.False(t, res.SameRows)
	require.Len(t, res.Deltas, 2)

	gs := res.Deltas[0]
	require.Equal(t, types.MetricGrossSales, gs.Metric)
	require.Equal(t, "10", gs.Delta.String())
	require.NotNil(t, gs.Percent)
	require.Equal(t, "25", gs.Percent.String())

	gp := res.Deltas[1]
	require.Equal(t, types.MetricGrossProfit, gp.Metric)
	require.True(t, gp.Delta.IsZero())

	_, err = s.Compare(ctx, "old", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompareZeroBaseline(t *testing.T) {
	older := &StoredRun{ID: "o", Stats: types.RunStats{Totals: map[types.Metric]decimal.Decimal{}}}
	newer := &StoredRun{ID: "n", Stats: types.RunStats{Totals: map[types.Metric]decimal.Decimal{
		types.MetricCOGS: decimal.NewFromInt(5),
	}}}
	res := compare(older, newer)
	require.Len(t, res.Deltas, 1)
	require.Nil(t, res.Deltas[0].Percent)
	require.Equal(t, "5", res.Deltas[0].Delta.String())
}
