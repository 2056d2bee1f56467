// Package cmd provides the CLI commands for profit-engine.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"profit-engine/core/ui"
	"profit-engine/internal/config"
	"profit-engine/internal/logging"
)

// Version is set at build time with -ldflags "-X profit-engine/cmd/cli/cmd.Version=...".
var Version = "0.1.0"

type rootOptions struct {
	cfgFile string
	envFile string
	verbose bool
	quiet   bool
	noColor bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "profit-engine",
		Short: "Compute P&L waterfalls from volume, pricing and trade-spend data",
		Long: `profit-engine joins historical sales volume with pricing/cost and
trade-spend reference tables and reports the P&L waterfall per record:
Gross Sales, Net Shipment, Net Total Sales and Gross Profit.

Examples:
  profit-engine run --input-dir ./CSV
  profit-engine run --format xlsx --out report.xlsx
  profit-engine run --mode skip --metrics gs,ns,nts,cogs,gp
  profit-engine history list --sqlite runs.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (.json or .hcl)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with PROFIT_ENGINE_* overrides")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging and per-stage timings")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress the run summary")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root, opts
}

// Execute runs the CLI
func Execute() error {
	return executeArgs(os.Args[1:], os.Stdout, os.Stderr)
}

// executeArgs runs the command tree and reports a failure on stderr.
func executeArgs(args []string, stdout, stderr io.Writer) error {
	root, opts := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err != nil {
		opts.writer(stderr).Error("%v", err)
	}
	return err
}

// writer returns a terminal writer honoring --quiet, --verbose and --no-color.
func (o *rootOptions) writer(out io.Writer) *ui.Writer {
	w := ui.NewWriter(out, o.noColor)
	switch {
	case o.quiet:
		w.SetVerbosity(0)
	case o.verbose:
		w.SetVerbosity(2)
	}
	return w
}

// initConfig layers defaults, the config file, the dotenv file and the
// environment, then initializes logging. Command flags are applied last by
// each command.
func (o *rootOptions) initConfig() error {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return err
	}

	cfg := config.Default()
	if o.cfgFile != "" {
		loaded, err := config.Load(o.cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	config.Set(cfg)

	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "profit-engine version %s\n", Version)
		},
	}
}
