// Package cmd - run command
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"profit-engine/adapters/storage"
	"profit-engine/core/engine"
	"profit-engine/core/ingest"
	"profit-engine/core/output"
	"profit-engine/core/types"
	"profit-engine/core/ui"
	"profit-engine/internal/config"
	"profit-engine/internal/errors"
	"profit-engine/internal/logging"
	"profit-engine/internal/metrics"
)

type runOptions struct {
	root *rootOptions

	inputDir   string
	volume     string
	pricing    string
	tradeSpend string

	format    string
	out       string
	precision int32

	mode       string
	duplicates string
	metrics    []string
	workers    int
	currency   string

	sqlite          string
	metricsTextfile string
	metricsGateway  string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{root: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the P&L waterfall report",
		Long: `Load the volume, pricing/cost and trade-spend files, compute the
waterfall for every volume record and write the long-format report.

Flags override the config file and PROFIT_ENGINE_* environment variables.

Examples:
  profit-engine run
  profit-engine run --input-dir ./CSV --out report.csv
  profit-engine run --format json --workers 8
  profit-engine run --mode skip --duplicates last-wins`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.inputDir, "input-dir", "", "directory holding the input files")
	f.StringVar(&o.volume, "volume", "", "volume actuals CSV")
	f.StringVar(&o.pricing, "pricing", "", "pricing/cost CSV")
	f.StringVar(&o.tradeSpend, "trade-spend", "", "trade-spend CSV")
	f.StringVarP(&o.format, "format", "f", "", "output format (csv, json, xlsx, table)")
	f.StringVarP(&o.out, "out", "o", "", "output file (default stdout)")
	f.Int32Var(&o.precision, "precision", 2, "decimal places in the report; negative keeps full precision")
	f.StringVar(&o.mode, "mode", "", "record failure handling (fail-fast, skip)")
	f.StringVar(&o.duplicates, "duplicates", "", "duplicate reference keys (reject, last-wins)")
	f.StringSliceVar(&o.metrics, "metrics", nil, "reported metrics, e.g. gs,ns,nts,cogs,gp")
	f.IntVarP(&o.workers, "workers", "w", 0, "concurrent record workers")
	f.StringVar(&o.currency, "currency", "", "currency label for the report")
	f.StringVar(&o.sqlite, "sqlite", "", "SQLite database to record the run in")
	f.StringVar(&o.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file")
	f.StringVar(&o.metricsGateway, "metrics-gateway", "", "push Prometheus metrics to this Pushgateway URL")
	return cmd
}

// apply copies explicitly set flags onto cfg.
func (o *runOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}
	set("input-dir", func() { cfg.Inputs.Dir = o.inputDir })
	set("volume", func() { cfg.Inputs.Volume = o.volume })
	set("pricing", func() { cfg.Inputs.Pricing = o.pricing })
	set("trade-spend", func() { cfg.Inputs.TradeSpend = o.tradeSpend })
	set("format", func() { cfg.Output.Format = o.format })
	set("out", func() { cfg.Output.Path = o.out })
	set("precision", func() { cfg.Output.Precision = o.precision })
	set("mode", func() { cfg.Pipeline.Mode = o.mode })
	set("duplicates", func() { cfg.Pipeline.Duplicates = o.duplicates })
	set("metrics", func() { cfg.Pipeline.Metrics = o.metrics })
	set("workers", func() { cfg.Pipeline.Workers = o.workers })
	set("currency", func() { cfg.Pipeline.Currency = types.Currency(o.currency) })
	set("sqlite", func() { cfg.Storage.SQLitePath = o.sqlite })
	set("metrics-textfile", func() { cfg.Metrics.Textfile = o.metricsTextfile })
	set("metrics-gateway", func() { cfg.Metrics.GatewayURL = o.metricsGateway })
}

func (o *runOptions) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Get()
	o.apply(cmd.Flags(), cfg)
	log := logging.Named("cli")

	engineOpts, err := engine.OptionsFromConfig(cfg.Pipeline)
	if err != nil {
		return err
	}
	formatter, err := output.DefaultRegistry(output.Options{
		Precision: cfg.Output.Precision,
		NoColor:   o.root.noColor,
	}).Get(cfg.Output.Format)
	if err != nil {
		return errors.Config("output.format", err)
	}

	if cfg.Metrics.Enabled() {
		backend, err := metrics.NewPrometheusBackend(metrics.PrometheusOptions{
			Textfile:   cfg.Metrics.Textfile,
			GatewayURL: cfg.Metrics.GatewayURL,
		})
		if err != nil {
			return err
		}
		metrics.SetBackend(backend)
		defer func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics flush failed", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}()
	}

	var stages []ui.Stage
	timed := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		stages = append(stages, ui.Stage{Name: name, Duration: time.Since(start)})
		return err
	}

	volume, pricing, spend := cfg.Inputs.Paths()
	var tables types.Tables
	if err := timed("ingest", func() (err error) {
		tables, err = ingest.Load(ctx, ingest.Paths{Volume: volume, Pricing: pricing, TradeSpend: spend})
		return err
	}); err != nil {
		return err
	}

	var report *types.Report
	if err := timed("calculate", func() (err error) {
		report, err = engine.NewOrchestrator(engineOpts).Run(ctx, tables)
		return err
	}); err != nil {
		return err
	}

	if err := timed("output", func() error {
		return writeReport(cmd.OutOrStdout(), cfg.Output.Path, formatter, report)
	}); err != nil {
		return err
	}

	if cfg.Storage.SQLitePath != "" {
		meta := map[string]string{
			"volume":      volume,
			"pricing":     pricing,
			"trade_spend": spend,
			"mode":        string(engineOpts.Mode),
			"currency":    string(report.Currency),
			"version":     Version,
		}
		if err := timed("store", func() error {
			return saveRun(ctx, cfg.Storage.SQLitePath, storage.FromReport(report, meta))
		}); err != nil {
			return err
		}
	}

	summary := o.root.writer(cmd.ErrOrStderr()).NewRunSummary()
	summary.RunID = report.RunID
	summary.Fingerprint = report.Fingerprint
	summary.Records = report.Stats.Records
	summary.Rows = report.Stats.Rows
	summary.Skipped = report.Stats.Skipped
	summary.SpendFallback = report.Stats.SpendFallback
	summary.RateWarnings = report.Stats.RateWarnings
	summary.Output = cfg.Output.Path
	summary.Stages = stages
	summary.Render()
	return nil
}

// writeReport renders to stdout, or to path via a temporary file renamed
// into place once complete.
func writeReport(stdout io.Writer, path string, f output.Formatter, report *types.Report) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("output", err, time.Since(start)) }()

	if path == "" {
		return f.Render(stdout, report)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "create %s", path)
	}
	defer os.Remove(tmp.Name())

	if err := f.Render(tmp, report); err != nil {
		tmp.Close()
		return errors.Wrapf(errors.TypeInternal, err, "render %s", f.Format())
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return errors.Wrapf(errors.TypeInternal, err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "write %s", path)
	}
	return nil
}

func saveRun(ctx context.Context, path string, run *storage.StoredRun) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("store", err, time.Since(start)) }()

	store, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()
	return store.Save(ctx, run)
}
