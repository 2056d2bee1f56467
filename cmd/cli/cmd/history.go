// Package cmd - history commands
package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"profit-engine/adapters/storage"
	"profit-engine/core/output"
	"profit-engine/core/types"
	"profit-engine/core/ui"
	"profit-engine/internal/config"
	"profit-engine/internal/errors"
)

type historyOptions struct {
	root   *rootOptions
	sqlite string
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	o := &historyOptions{root: root}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect runs recorded in the SQLite store",
	}
	cmd.PersistentFlags().StringVar(&o.sqlite, "sqlite", "", "SQLite database (default from config storage.sqlite_path)")

	cmd.AddCommand(o.listCmd(), o.showCmd(), o.compareCmd())
	return cmd
}

func (o *historyOptions) open(cmd *cobra.Command) (*storage.SQLiteStore, context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	path := o.sqlite
	if path == "" {
		path = config.Get().Storage.SQLitePath
	}
	if path == "" {
		return nil, nil, errors.Input("no run store configured: pass --sqlite or set storage.sqlite_path")
	}
	store, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return store, ctx, nil
}

func (o *historyOptions) listCmd() *cobra.Command {
	var (
		limit int
		since string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := &storage.ListFilter{Limit: limit}
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					return errors.Parsing("--since", err)
				}
				filter.Since = time.Now().Add(-d)
			}

			store, ctx, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(ctx, filter)
			if err != nil {
				return err
			}

			w := ui.NewWriter(cmd.OutOrStdout(), o.root.noColor)
			t := w.NewTable("Run ID", "Created", "Records", "Rows", "Skipped", "Fingerprint").
				SetAlign(2, ui.AlignRight).
				SetAlign(3, ui.AlignRight).
				SetAlign(4, ui.AlignRight)
			for _, r := range runs {
				t.AddRow(
					r.ID,
					r.CreatedAt.Local().Format(time.DateTime),
					strconv.Itoa(r.Stats.Records),
					strconv.Itoa(r.Stats.Rows),
					strconv.Itoa(r.Stats.Skipped),
					shortHash(r.Fingerprint),
				)
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&since, "since", "", "only runs newer than this duration, e.g. 24h")
	return cmd
}

func (o *historyOptions) showCmd() *cobra.Command {
	var (
		format    string
		precision int32
	)
	cmd := &cobra.Command{
		Use:   "show <run-id|latest>",
		Short: "Print the report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := output.DefaultRegistry(output.Options{
				Precision: precision,
				NoColor:   o.root.noColor,
			}).Get(format)
			if err != nil {
				return errors.Config("format", err)
			}

			store, ctx, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			var run *storage.StoredRun
			if args[0] == "latest" {
				run, err = store.GetLatest(ctx)
			} else {
				run, err = store.Get(ctx, args[0])
			}
			if err != nil {
				return err
			}

			return formatter.Render(cmd.OutOrStdout(), &types.Report{
				RunID:       run.ID,
				Currency:    types.Currency(run.Metadata["currency"]),
				Metrics:     run.Metrics,
				Rows:        run.Rows,
				Stats:       run.Stats,
				Fingerprint: run.Fingerprint,
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (csv, json, xlsx, table)")
	cmd.Flags().Int32Var(&precision, "precision", 2, "decimal places; negative keeps full precision")
	return cmd
}

func (o *historyOptions) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <old-run-id> <new-run-id>",
		Short: "Compare metric totals of two recorded runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, ctx, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := store.Compare(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			w := ui.NewWriter(cmd.OutOrStdout(), o.root.noColor)
			t := w.NewTable("Metric", "Old", "New", "Delta", "Change").
				SetAlign(1, ui.AlignRight).
				SetAlign(2, ui.AlignRight).
				SetAlign(3, ui.AlignRight).
				SetAlign(4, ui.AlignRight)
			for _, d := range res.Deltas {
				change := "n/a"
				if d.Percent != nil {
					change = d.Percent.StringFixed(2) + "%"
				}
				t.AddRow(d.Metric.String(), d.Old.StringFixed(2), d.New.StringFixed(2), d.Delta.StringFixed(2), change)
			}
			t.Render()
			if res.SameRows {
				w.Success("reports are identical (fingerprint match)")
			}
			return nil
		},
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
