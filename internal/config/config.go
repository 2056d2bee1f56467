// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"profit-engine/core/types"
	"profit-engine/internal/errors"
	"profit-engine/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Inputs locates the three source tables
	Inputs InputsConfig `json:"inputs"`

	// Pipeline controls how a run behaves
	Pipeline PipelineConfig `json:"pipeline"`

	// Output controls the report sink
	Output OutputConfig `json:"output"`

	// Storage configures the optional SQLite report store
	Storage StorageConfig `json:"storage"`

	// Metrics configures Prometheus export
	Metrics MetricsConfig `json:"metrics"`

	// Server configures the HTTP service
	Server ServerConfig `json:"server"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// InputsConfig locates the volume, pricing/cost and trade-spend CSV files.
// Relative file names resolve against Dir.
type InputsConfig struct {
	Dir        string `json:"dir"`
	Volume     string `json:"volume"`
	Pricing    string `json:"pricing"`
	TradeSpend string `json:"trade_spend"`
}

// Paths returns the resolved volume, pricing and trade-spend paths.
func (c InputsConfig) Paths() (volume, pricing, tradeSpend string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || c.Dir == "" {
			return p
		}
		return filepath.Join(c.Dir, p)
	}
	return resolve(c.Volume), resolve(c.Pricing), resolve(c.TradeSpend)
}

// PipelineConfig contains run settings
type PipelineConfig struct {
	// Mode is "fail-fast" or "skip"
	Mode string `json:"mode"`

	// Duplicates is "reject" or "last-wins"
	Duplicates string `json:"duplicates"`

	// Metrics lists reported metrics; empty means the default four
	Metrics []string `json:"metrics,omitempty"`

	// Workers bounds concurrent record computation
	Workers int `json:"workers"`

	// Currency labels the report; no conversion is performed
	Currency types.Currency `json:"currency"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// Format is csv, json, xlsx or table
	Format string `json:"format"`

	// Path is the destination file; empty writes to stdout
	Path string `json:"path"`

	// Precision is the number of decimal places rendered
	Precision int32 `json:"precision"`
}

// StorageConfig contains SQLite settings
type StorageConfig struct {
	// SQLitePath enables persisting runs when set
	SQLitePath string `json:"sqlite_path"`
}

// MetricsConfig contains Prometheus export settings
type MetricsConfig struct {
	Textfile   string `json:"textfile"`
	GatewayURL string `json:"gateway_url"`
}

// ServerConfig contains HTTP service settings
type ServerConfig struct {
	// Addr is the listen address
	Addr string `json:"addr"`

	// MaxUploadMB caps the multipart body of one run request
	MaxUploadMB int64 `json:"max_upload_mb"`
}

// Enabled reports whether any metrics sink is configured.
func (m MetricsConfig) Enabled() bool {
	return m.Textfile != "" || m.GatewayURL != ""
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version: "1.0",
		Inputs: InputsConfig{
			Dir:        "CSV",
			Volume:     "Vol_Actuals_2024_2025.csv",
			Pricing:    "Pricing_Cost.csv",
			TradeSpend: "Trade_Spend.csv",
		},
		Pipeline: PipelineConfig{
			Mode:       "fail-fast",
			Duplicates: "reject",
			Workers:    1,
			Currency:   types.CurrencyUSD,
		},
		Output: OutputConfig{
			Format:    "csv",
			Precision: 2,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 64,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads a .json or .hcl configuration file over the defaults. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Config("read "+path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		if err := decodeHCL(path, data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Config("parse "+path, err)
		}
	}
	return cfg, nil
}

// Save saves configuration to a file as JSON
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
