package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"profit-engine/core/types"
	"profit-engine/internal/logging"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	created_at     TEXT NOT NULL,
	fingerprint    TEXT NOT NULL,
	metrics        TEXT NOT NULL,
	records        INTEGER NOT NULL,
	row_count      INTEGER NOT NULL,
	skipped        INTEGER NOT NULL,
	spend_fallback INTEGER NOT NULL,
	rate_warnings  INTEGER NOT NULL,
	metadata       TEXT
);
CREATE TABLE IF NOT EXISTS run_totals (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	metric TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (run_id, metric)
);
CREATE TABLE IF NOT EXISTS run_rows (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq            INTEGER NOT NULL,
	year           INTEGER NOT NULL,
	category       TEXT NOT NULL,
	ean            TEXT NOT NULL,
	channel_client TEXT NOT NULL,
	account        TEXT NOT NULL,
	metric         TEXT NOT NULL,
	value          TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at);
`

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a SQLite-backed Store. Values are stored as decimal strings
// so a stored report reads back exactly.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path must not be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &SQLiteStore{db: db, log: logging.Named("storage")}, nil
}

// Save stores the run, its totals and its rows in one transaction. A run
// without an ID gets a new one.
func (s *SQLiteStore) Save(ctx context.Context, run *StoredRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, fingerprint, metrics, records, row_count, skipped, spend_fallback, rate_warnings, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.CreatedAt.UTC().Format(timeLayout),
		run.Fingerprint,
		joinMetrics(run.Metrics),
		run.Stats.Records,
		run.Stats.Rows,
		run.Stats.Skipped,
		run.Stats.SpendFallback,
		run.Stats.RateWarnings,
		string(meta),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert run %s: %w", run.ID, err)
	}

	for m, v := range run.Stats.Totals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_totals (run_id, metric, value) VALUES (?, ?, ?)`,
			run.ID, m.String(), v.String()); err != nil {
			return fmt.Errorf("sqlite: insert total: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_rows (run_id, seq, year, category, ean, channel_client, account, metric, value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range run.Rows {
		if _, err := stmt.ExecContext(ctx, run.ID, i, row.Year, row.Category, row.EAN,
			row.ChannelClient, row.Account, row.Metric.String(), row.Value.String()); err != nil {
			return fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	s.log.Debug("run saved", zap.String("run_id", run.ID), zap.Int("rows", len(run.Rows)))
	return nil
}

// Get retrieves a run with its totals and rows.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*StoredRun, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadTotals(ctx, run); err != nil {
		return nil, err
	}
	if err := s.loadRows(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// List returns runs newest first, with totals but without rows.
func (s *SQLiteStore) List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error) {
	query := selectRun
	var where []string
	var args []any
	if filter != nil {
		if !filter.Since.IsZero() {
			where = append(where, "created_at >= ?")
			args = append(args, filter.Since.UTC().Format(timeLayout))
		}
		if !filter.Until.IsZero() {
			where = append(where, "created_at <= ?")
			args = append(args, filter.Until.UTC().Format(timeLayout))
		}
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	var runs []*StoredRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, run := range runs {
		if err := s.loadTotals(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// GetLatest returns the most recently created run, with its rows.
func (s *SQLiteStore) GetLatest(ctx context.Context) (*StoredRun, error) {
	runs, err := s.List(ctx, &ListFilter{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: store is empty", ErrNotFound)
	}
	return s.Get(ctx, runs[0].ID)
}

// Compare diffs the metric totals of two stored runs.
func (s *SQLiteStore) Compare(ctx context.Context, oldID, newID string) (*CompareResult, error) {
	older, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, fmt.Errorf("failed to get old run: %w", err)
	}
	newer, err := s.Get(ctx, newID)
	if err != nil {
		return nil, fmt.Errorf("failed to get new run: %w", err)
	}
	return compare(older, newer), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectRun = `SELECT id, created_at, fingerprint, metrics, records, row_count, skipped, spend_fallback, rate_warnings, metadata FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*StoredRun, error) {
	var (
		run       StoredRun
		createdAt string
		metrics   string
		meta      sql.NullString
	)
	err := sc.Scan(&run.ID, &createdAt, &run.Fingerprint, &metrics,
		&run.Stats.Records, &run.Stats.Rows, &run.Stats.Skipped,
		&run.Stats.SpendFallback, &run.Stats.RateWarnings, &meta)
	if err != nil {
		return nil, err
	}

	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: run %s: created_at: %w", run.ID, err)
	}
	if run.Metrics, err = splitMetrics(metrics); err != nil {
		return nil, fmt.Errorf("sqlite: run %s: %w", run.ID, err)
	}
	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &run.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: run %s: metadata: %w", run.ID, err)
		}
	}
	return &run, nil
}

func (s *SQLiteStore) loadTotals(ctx context.Context, run *StoredRun) error {
	rows, err := s.db.QueryContext(ctx, `SELECT metric, value FROM run_totals WHERE run_id = ?`, run.ID)
	if err != nil {
		return fmt.Errorf("sqlite: load totals: %w", err)
	}
	defer rows.Close()

	run.Stats.Totals = make(map[types.Metric]decimal.Decimal)
	for rows.Next() {
		var label, value string
		if err := rows.Scan(&label, &value); err != nil {
			return err
		}
		m, err := types.ParseMetric(label)
		if err != nil {
			return fmt.Errorf("sqlite: run %s: %w", run.ID, err)
		}
		if run.Stats.Totals[m], err = decimal.NewFromString(value); err != nil {
			return fmt.Errorf("sqlite: run %s: total %s: %w", run.ID, label, err)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadRows(ctx context.Context, run *StoredRun) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, category, ean, channel_client, account, metric, value
		 FROM run_rows WHERE run_id = ? ORDER BY seq`, run.ID)
	if err != nil {
		return fmt.Errorf("sqlite: load rows: %w", err)
	}
	defer rows.Close()

	run.Rows = make([]types.OutputRow, 0, run.Stats.Rows)
	for rows.Next() {
		var (
			r            types.OutputRow
			label, value string
		)
		if err := rows.Scan(&r.Year, &r.Category, &r.EAN, &r.ChannelClient, &r.Account, &label, &value); err != nil {
			return err
		}
		if r.Metric, err = types.ParseMetric(label); err != nil {
			return fmt.Errorf("sqlite: run %s: %w", run.ID, err)
		}
		if r.Value, err = decimal.NewFromString(value); err != nil {
			return fmt.Errorf("sqlite: run %s: value: %w", run.ID, err)
		}
		run.Rows = append(run.Rows, r)
	}
	return rows.Err()
}

func joinMetrics(ms []types.Metric) string {
	labels := make([]string, len(ms))
	for i, m := range ms {
		labels[i] = m.String()
	}
	return strings.Join(labels, ",")
}

func splitMetrics(s string) ([]types.Metric, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]types.Metric, 0, len(parts))
	for _, p := range parts {
		m, err := types.ParseMetric(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
