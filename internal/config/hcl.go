package config

import (
	"github.com/hashicorp/hcl/v2/hclsimple"

	"profit-engine/core/types"
	"profit-engine/internal/errors"
)

// hclFile mirrors Config for HCL files. Every attribute is optional and
// only overrides the default when present:
//
//	inputs {
//	  dir = "CSV"
//	}
//	pipeline {
//	  mode    = "skip"
//	  metrics = ["gross sales", "nts", "gross profit"]
//	}
type hclFile struct {
	Inputs   *hclInputs   `hcl:"inputs,block"`
	Pipeline *hclPipeline `hcl:"pipeline,block"`
	Output   *hclOutput   `hcl:"output,block"`
	Storage  *hclStorage  `hcl:"storage,block"`
	Metrics  *hclMetrics  `hcl:"metrics,block"`
	Server   *hclServer   `hcl:"server,block"`
	Logging  *hclLogging  `hcl:"logging,block"`
}

type hclInputs struct {
	Dir        *string `hcl:"dir,optional"`
	Volume     *string `hcl:"volume,optional"`
	Pricing    *string `hcl:"pricing,optional"`
	TradeSpend *string `hcl:"trade_spend,optional"`
}

type hclPipeline struct {
	Mode       *string  `hcl:"mode,optional"`
	Duplicates *string  `hcl:"duplicates,optional"`
	Metrics    []string `hcl:"metrics,optional"`
	Workers    *int     `hcl:"workers,optional"`
	Currency   *string  `hcl:"currency,optional"`
}

type hclOutput struct {
	Format    *string `hcl:"format,optional"`
	Path      *string `hcl:"path,optional"`
	Precision *int    `hcl:"precision,optional"`
}

type hclStorage struct {
	SQLitePath *string `hcl:"sqlite_path,optional"`
}

type hclMetrics struct {
	Textfile   *string `hcl:"textfile,optional"`
	GatewayURL *string `hcl:"gateway_url,optional"`
}

type hclServer struct {
	Addr        *string `hcl:"addr,optional"`
	MaxUploadMB *int64  `hcl:"max_upload_mb,optional"`
}

type hclLogging struct {
	Level       *string `hcl:"level,optional"`
	Format      *string `hcl:"format,optional"`
	Output      *string `hcl:"output,optional"`
	Development *bool   `hcl:"development,optional"`
}

func decodeHCL(path string, src []byte, cfg *Config) error {
	var f hclFile
	if err := hclsimple.Decode(path, src, nil, &f); err != nil {
		return errors.Config("parse "+path, err)
	}

	if in := f.Inputs; in != nil {
		setString(&cfg.Inputs.Dir, in.Dir)
		setString(&cfg.Inputs.Volume, in.Volume)
		setString(&cfg.Inputs.Pricing, in.Pricing)
		setString(&cfg.Inputs.TradeSpend, in.TradeSpend)
	}
	if p := f.Pipeline; p != nil {
		setString(&cfg.Pipeline.Mode, p.Mode)
		setString(&cfg.Pipeline.Duplicates, p.Duplicates)
		if p.Metrics != nil {
			cfg.Pipeline.Metrics = p.Metrics
		}
		if p.Workers != nil {
			cfg.Pipeline.Workers = *p.Workers
		}
		if p.Currency != nil {
			cfg.Pipeline.Currency = types.Currency(*p.Currency)
		}
	}
	if o := f.Output; o != nil {
		setString(&cfg.Output.Format, o.Format)
		setString(&cfg.Output.Path, o.Path)
		if o.Precision != nil {
			cfg.Output.Precision = int32(*o.Precision)
		}
	}
	if s := f.Storage; s != nil {
		setString(&cfg.Storage.SQLitePath, s.SQLitePath)
	}
	if m := f.Metrics; m != nil {
		setString(&cfg.Metrics.Textfile, m.Textfile)
		setString(&cfg.Metrics.GatewayURL, m.GatewayURL)
	}
	if srv := f.Server; srv != nil {
		setString(&cfg.Server.Addr, srv.Addr)
		if srv.MaxUploadMB != nil {
			cfg.Server.MaxUploadMB = *srv.MaxUploadMB
		}
	}
	if l := f.Logging; l != nil {
		setString(&cfg.Logging.Level, l.Level)
		setString(&cfg.Logging.Format, l.Format)
		setString(&cfg.Logging.Output, l.Output)
		if l.Development != nil {
			cfg.Logging.Development = *l.Development
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
