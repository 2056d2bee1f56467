package ingest

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"profit-engine/core/types"
	"profit-engine/internal/errors"
	"profit-engine/internal/logging"
	"profit-engine/internal/metrics"
)

// Paths locates the three input files.
type Paths struct {
	Volume     string
	Pricing    string
	TradeSpend string
}

// Load reads the three files concurrently. Any failure cancels the others
// and no tables are returned.
func Load(ctx context.Context, p Paths) (types.Tables, error) {
	start := time.Now()
	log := logging.Named("ingest")

	var tables types.Tables
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		tables.Volume, err = readFile(gctx, p.Volume, ReadVolume)
		return err
	})
	g.Go(func() (err error) {
		tables.Pricing, err = readFile(gctx, p.Pricing, ReadPricing)
		return err
	})
	g.Go(func() (err error) {
		tables.TradeSpend, err = readFile(gctx, p.TradeSpend, ReadTradeSpend)
		return err
	})

	err := g.Wait()
	metrics.RecordStep("ingest", err, time.Since(start))
	if err != nil {
		return types.Tables{}, err
	}

	log.Info("inputs loaded",
		zap.Int("volume", len(tables.Volume)),
		zap.Int("pricing", len(tables.Pricing)),
		zap.Int("trade_spend", len(tables.TradeSpend)),
		zap.Duration("duration", time.Since(start)))
	return tables, nil
}

func readFile[T any](ctx context.Context, path string, read func(io.Reader, string) ([]T, error)) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.Input("input path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeInput, err, "open %s", path).WithContext("file", path)
	}
	defer f.Close()
	return read(f, path)
}
