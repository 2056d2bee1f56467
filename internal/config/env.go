package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"profit-engine/core/types"
	"profit-engine/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROFIT_ENGINE_"

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Config("load "+f, err)
		}
	}
	return nil
}

// ApplyEnv overlays PROFIT_ENGINE_* variables onto c.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"INPUT_DIR":        &c.Inputs.Dir,
		"VOLUME_FILE":      &c.Inputs.Volume,
		"PRICING_FILE":     &c.Inputs.Pricing,
		"TRADE_SPEND_FILE": &c.Inputs.TradeSpend,
		"MODE":             &c.Pipeline.Mode,
		"DUPLICATES":       &c.Pipeline.Duplicates,
		"OUTPUT_FORMAT":    &c.Output.Format,
		"OUTPUT_PATH":      &c.Output.Path,
		"SQLITE_PATH":      &c.Storage.SQLitePath,
		"METRICS_TEXTFILE": &c.Metrics.Textfile,
		"METRICS_GATEWAY":  &c.Metrics.GatewayURL,
		"SERVER_ADDR":      &c.Server.Addr,
		"LOG_LEVEL":        &c.Logging.Level,
		"LOG_FORMAT":       &c.Logging.Format,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Config(EnvPrefix+"WORKERS", err)
		}
		c.Pipeline.Workers = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "PRECISION"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return errors.Config(EnvPrefix+"PRECISION", err)
		}
		c.Output.Precision = int32(n)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "CURRENCY"); ok {
		c.Pipeline.Currency = types.Currency(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "METRICS"); ok {
		c.Pipeline.Metrics = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
