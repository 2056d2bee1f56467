// Package metrics records pipeline counters and step durations behind a
// pluggable backend. The default backend discards everything, so callers
// never need to check whether metrics are configured.
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend receives metric updates.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush writes or pushes collected metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

const (
	StepTotal       = "profit_engine_step_total"
	StepDuration    = "profit_engine_step_duration_seconds"
	RecordsTotal    = "profit_engine_records_total"
	RowsTotal       = "profit_engine_rows_total"
	DataQualityHits = "profit_engine_data_quality_total"
)

// SetBackend installs a backend. Passing nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep records success/failure and latency of one pipeline step.
func RecordStep(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRecords counts volume records by outcome ("processed", "skipped").
func RecordRecords(outcome string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"outcome": outcome})
}

// RecordRows counts emitted report rows.
func RecordRows(n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), nil)
}

// RecordDataQuality counts data-quality signals that do not stop a run,
// such as "spend_fallback" or "rate_out_of_range".
func RecordDataQuality(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(DataQualityHits, float64(n), Labels{"kind": kind})
}
