// Package engine - Pipeline orchestrator
// Enforces the execution order of a run:
// 1. Reference index (built once, read-only afterwards)
// 2. Waterfall per volume record, in input order
// 3. Pivot to long rows
// 4. Report assembly (stats, fingerprint)
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"profit-engine/core/cost"
	"profit-engine/core/determinism"
	"profit-engine/core/pivot"
	"profit-engine/core/reference"
	"profit-engine/core/types"
	"profit-engine/internal/config"
	"profit-engine/internal/errors"
	"profit-engine/internal/logging"
	"profit-engine/internal/metrics"
)

// Mode decides what a record-level failure does to the run.
type Mode string

const (
	// FailFast aborts the run on the first failing record and emits nothing.
	FailFast Mode = "fail-fast"

	// SkipAndReport leaves failing records out and lists them in the report.
	SkipAndReport Mode = "skip"
)

// ParseMode accepts "fail-fast" (default) or "skip".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailFast, "failfast":
		return FailFast, nil
	case SkipAndReport, "skip-and-report":
		return SkipAndReport, nil
	}
	return "", fmt.Errorf("unknown run mode %q", s)
}

// Options configures an Orchestrator.
type Options struct {
	Mode       Mode
	Duplicates reference.DuplicatePolicy
	Metrics    pivot.Selection

	// Workers > 1 computes records concurrently. Output order is unchanged.
	Workers int

	// Currency labels the report. Values are not converted.
	Currency types.Currency
}

// OptionsFromConfig validates a pipeline config section. Errors are
// CONFIG_ERROR naming the offending key.
func OptionsFromConfig(c config.PipelineConfig) (Options, error) {
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return Options{}, errors.Config("pipeline.mode", err)
	}
	dups, err := reference.ParseDuplicatePolicy(c.Duplicates)
	if err != nil {
		return Options{}, errors.Config("pipeline.duplicates", err)
	}
	sel, err := pivot.ParseSelection(c.Metrics)
	if err != nil {
		return Options{}, errors.Config("pipeline.metrics", err)
	}
	return Options{
		Mode:       mode,
		Duplicates: dups,
		Metrics:    sel,
		Workers:    c.Workers,
		Currency:   c.Currency,
	}, nil
}

// Orchestrator runs the waterfall pipeline over materialized tables.
type Orchestrator struct {
	opts Options
	log  *zap.Logger
}

// NewOrchestrator applies defaults to opts.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Mode == "" {
		opts.Mode = FailFast
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = pivot.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Currency == "" {
		opts.Currency = types.CurrencyUSD
	}
	return &Orchestrator{opts: opts, log: logging.Named("engine")}
}

type lineResult struct {
	rows     []types.OutputRow
	fallback bool
	warnings []string
	err      error
}

// Run builds the reference index, computes every volume record and returns
// the long-format report. In FailFast mode any MISSING_PRICE or
// INVALID_INPUT error aborts the run and no report is returned.
func (o *Orchestrator) Run(ctx context.Context, tables types.Tables) (*types.Report, error) {
	start := time.Now()

	idx, err := o.buildIndex(tables)
	if err != nil {
		return nil, err
	}

	calcStart := time.Now()
	results, err := o.compute(ctx, idx, tables.Volume)
	metrics.RecordStep("calculate", err, time.Since(calcStart))
	if err != nil {
		return nil, err
	}

	report := o.assemble(tables.Volume, results)
	metrics.RecordRecords("processed", report.Stats.Records-report.Stats.Skipped)
	metrics.RecordRecords("skipped", report.Stats.Skipped)
	metrics.RecordRows(report.Stats.Rows)
	metrics.RecordDataQuality("spend_fallback", report.Stats.SpendFallback)
	metrics.RecordDataQuality("rate_out_of_range", report.Stats.RateWarnings)

	o.log.Info("run complete",
		zap.String("run_id", report.RunID),
		zap.Int("records", report.Stats.Records),
		zap.Int("rows", report.Stats.Rows),
		zap.Int("skipped", report.Stats.Skipped),
		zap.Int("spend_fallback", report.Stats.SpendFallback),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

func (o *Orchestrator) buildIndex(tables types.Tables) (*reference.Index, error) {
	start := time.Now()
	idx, err := reference.Build(tables.Pricing, tables.TradeSpend, reference.Options{Duplicates: o.opts.Duplicates})
	metrics.RecordStep("index", err, time.Since(start))
	return idx, err
}

// compute fills one lineResult per record. Records are launched in input
// order, so in FailFast mode the first failure by index is reported.
func (o *Orchestrator) compute(ctx context.Context, idx *reference.Index, volume []types.VolumeRecord) ([]lineResult, error) {
	results := make([]lineResult, len(volume))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for i := range volume {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = o.line(idx, volume[i])
			if results[i].err != nil && o.opts.Mode == FailFast {
				return results[i].err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.opts.Mode == FailFast {
		for i, r := range results {
			if r.err != nil {
				o.log.Error("run aborted", zap.Int("record", i), zap.String("key", volume[i].String()), zap.Error(r.err))
				return nil, fmt.Errorf("record %d (%s): %w", i, volume[i], r.err)
			}
		}
	}
	if waitErr != nil {
		return nil, waitErr
	}
	return results, nil
}

func (o *Orchestrator) line(idx *reference.Index, rec types.VolumeRecord) lineResult {
	price, err := idx.Price(rec.Year, rec.EAN, rec.ChannelClient)
	if err != nil {
		return lineResult{err: err}
	}
	spend, found := idx.TradeSpend(rec.Year, rec.ChannelClient)

	res, err := cost.Calculate(rec, price, spend)
	if err != nil {
		return lineResult{err: err}
	}
	res.SpendFallback = !found
	if len(res.RateWarnings) > 0 {
		o.log.Warn("rate outside [0,1] applied as given",
			zap.String("key", rec.String()), zap.Strings("rates", res.RateWarnings))
	}

	return lineResult{
		rows:     pivot.Pivot(res, o.opts.Metrics),
		fallback: res.SpendFallback,
		warnings: res.RateWarnings,
	}
}

func (o *Orchestrator) assemble(volume []types.VolumeRecord, results []lineResult) *types.Report {
	report := &types.Report{
		RunID:    uuid.New().String(),
		Currency: o.opts.Currency,
		Metrics:  append([]types.Metric(nil), o.opts.Metrics...),
		Rows:     make([]types.OutputRow, 0, len(volume)*len(o.opts.Metrics)),
		Stats: types.RunStats{
			Records: len(volume),
			Totals:  make(map[types.Metric]decimal.Decimal, len(o.opts.Metrics)),
		},
	}
	for _, m := range o.opts.Metrics {
		report.Stats.Totals[m] = decimal.Zero
	}

	for i, r := range results {
		if r.err != nil {
			reason := r.err.Error()
			if e, ok := errors.As(r.err); ok {
				reason = string(e.Type) + ": " + e.Message
			}
			report.Skipped = append(report.Skipped, types.SkippedRecord{
				Index: i, Line: volume[i].Line, Record: volume[i], Reason: reason, Err: r.err,
			})
			o.log.Warn("record skipped", zap.Int("record", i), zap.Int("line", volume[i].Line), zap.String("reason", reason))
			continue
		}
		if r.fallback {
			report.Stats.SpendFallback++
		}
		report.Stats.RateWarnings += len(r.warnings)
		for _, row := range r.rows {
			report.Stats.Totals[row.Metric] = report.Stats.Totals[row.Metric].Add(row.Value)
		}
		report.Rows = append(report.Rows, r.rows...)
	}

	report.Stats.Rows = len(report.Rows)
	report.Stats.Skipped = len(report.Skipped)
	report.Fingerprint = determinism.Fingerprint(report.Rows).Hex()
	return report
}
