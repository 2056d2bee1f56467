// Package storage keeps a history of pipeline runs so reports can be
// retrieved and compared later.
package storage

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"

	"profit-engine/core/determinism"
	"profit-engine/core/types"
)

// ErrNotFound is returned when no stored run matches.
var ErrNotFound = stderrors.New("run not found")

// Store is the storage interface
type Store interface {
	// Save stores a run
	Save(ctx context.Context, run *StoredRun) error

	// Get retrieves a run with its rows
	Get(ctx context.Context, id string) (*StoredRun, error)

	// List lists runs, newest first, without rows
	List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error)

	// GetLatest gets the most recent run
	GetLatest(ctx context.Context) (*StoredRun, error)

	// Compare compares the metric totals of two runs
	Compare(ctx context.Context, oldID, newID string) (*CompareResult, error)

	// Close closes the store
	Close() error
}

// StoredRun is a persisted pipeline run
type StoredRun struct {
	// ID is the report's run ID
	ID string `json:"id"`

	// CreatedAt timestamp
	CreatedAt time.Time `json:"created_at"`

	// Fingerprint of the report rows
	Fingerprint string `json:"fingerprint"`

	// Metrics reported, in order
	Metrics []types.Metric `json:"metrics"`

	// Stats of the run; Totals is always populated
	Stats types.RunStats `json:"stats"`

	// Rows is only populated by Get
	Rows []types.OutputRow `json:"rows,omitempty"`

	// Metadata such as input paths
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FromReport builds a StoredRun from a report.
func FromReport(report *types.Report, metadata map[string]string) *StoredRun {
	return &StoredRun{
		ID:          report.RunID,
		Fingerprint: report.Fingerprint,
		Metrics:     report.Metrics,
		Stats:       report.Stats,
		Rows:        report.Rows,
		Metadata:    metadata,
	}
}

// ListFilter filters run listing
type ListFilter struct {
	Since time.Time
	Until time.Time
	Limit int
}

// MetricDelta is the change in one metric total between two runs
type MetricDelta struct {
	Metric types.Metric    `json:"metric"`
	Old    decimal.Decimal `json:"old"`
	New    decimal.Decimal `json:"new"`
	Delta  decimal.Decimal `json:"delta"`

	// Percent is nil when the old total is zero
	Percent *decimal.Decimal `json:"percent,omitempty"`
}

// CompareResult is a comparison between two runs
type CompareResult struct {
	OldID     string        `json:"old_id"`
	NewID     string        `json:"new_id"`
	SameRows  bool          `json:"same_rows"`
	Deltas    []MetricDelta `json:"deltas"`
	CreatedAt time.Time     `json:"created_at"`
}

var hundred = decimal.NewFromInt(100)

// compare diffs the totals of two runs over the union of their metrics.
func compare(older, newer *StoredRun) *CompareResult {
	union := make(map[types.Metric]struct{})
	for m := range older.Stats.Totals {
		union[m] = struct{}{}
	}
	for m := range newer.Stats.Totals {
		union[m] = struct{}{}
	}

	res := &CompareResult{
		OldID:     older.ID,
		NewID:     newer.ID,
		SameRows:  older.Fingerprint == newer.Fingerprint,
		CreatedAt: time.Now().UTC(),
	}
	for _, m := range determinism.SortedMetrics(union) {
		o, n := older.Stats.Totals[m], newer.Stats.Totals[m]
		d := MetricDelta{Metric: m, Old: o, New: n, Delta: n.Sub(o)}
		if !o.IsZero() {
			p := d.Delta.Div(o.Abs()).Mul(hundred).Round(2)
			d.Percent = &p
		}
		res.Deltas = append(res.Deltas, d)
	}
	return res
}
