// Package main - Entry point for the profit-engine HTTP server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"profit-engine/adapters/storage"
	"profit-engine/api"
	"profit-engine/internal/config"
	"profit-engine/internal/logging"
	"profit-engine/internal/metrics"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

func run() error {
	cfgFile := pflag.String("config", "", "config file (.json or .hcl)")
	envFile := pflag.String("env-file", ".env", "dotenv file with PROFIT_ENGINE_* overrides")
	addr := pflag.String("addr", "", "listen address (default from config server.addr)")
	sqlite := pflag.String("sqlite", "", "SQLite database for run history")
	pflag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg := config.Default()
	if *cfgFile != "" {
		loaded, err := config.Load(*cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *sqlite != "" {
		cfg.Storage.SQLitePath = *sqlite
	}
	config.Set(cfg)
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	log := logging.Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := metrics.NewPrometheusBackend(metrics.PrometheusOptions{})
	if err != nil {
		return err
	}
	metrics.SetBackend(backend)

	opts := api.Options{
		Version:        version,
		Gatherer:       backend.Gatherer(),
		Pipeline:       cfg.Pipeline,
		Precision:      cfg.Output.Precision,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	}
	if cfg.Storage.SQLitePath != "" {
		store, err := storage.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
	}

	log.Info("listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("version", version),
		zap.Bool("history", opts.Store != nil))
	return api.NewServer(opts).ListenAndServe(ctx, cfg.Server.Addr)
}
