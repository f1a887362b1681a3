package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/andre-sav/HADES-sub001/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS usage_log (
	id           TEXT PRIMARY KEY,
	ts           DATETIME NOT NULL,
	workflow     TEXT NOT NULL,
	credits_used INTEGER NOT NULL,
	period_key   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS export_history (
	identity          TEXT PRIMARY KEY,
	first_exported_at DATETIME NOT NULL,
	last_exported_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	workflows   TEXT NOT NULL,
	diagnostics TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_usage_log_workflow_period ON usage_log(workflow, period_key);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendUsage(ctx context.Context, rec model.CreditUsageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_log (id, ts, workflow, credits_used, period_key) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, string(rec.Workflow), rec.CreditsUsed, rec.PeriodKey,
	)
	return eris.Wrap(err, "sqlite: append usage")
}

func (s *SQLiteStore) UsageTotal(ctx context.Context, workflow model.Workflow, periodKey string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(credits_used), 0) FROM usage_log WHERE workflow = ? AND period_key = ?`,
		string(workflow), periodKey,
	).Scan(&total)
	return total, eris.Wrap(err, "sqlite: usage total")
}

func (s *SQLiteStore) ListUsage(ctx context.Context, workflow model.Workflow, periodKey string) ([]model.CreditUsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, workflow, credits_used, period_key FROM usage_log
		 WHERE workflow = ? AND period_key = ? ORDER BY ts ASC`,
		string(workflow), periodKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list usage")
	}
	defer rows.Close()

	var recs []model.CreditUsageRecord
	for rows.Next() {
		var rec model.CreditUsageRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Workflow, &rec.CreditsUsed, &rec.PeriodKey); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage record")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list usage iterate")
}

func (s *SQLiteStore) RecordExports(ctx context.Context, identities []string, exportedAt time.Time) error {
	if len(identities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin export history tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, identity := range identities {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO export_history (identity, first_exported_at, last_exported_at) VALUES (?, ?, ?)
			 ON CONFLICT(identity) DO UPDATE SET last_exported_at = excluded.last_exported_at`,
			identity, exportedAt, exportedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: record export %s", identity)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit export history")
}

func (s *SQLiteStore) ExportedIdentities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity FROM export_history`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: exported identities")
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identity")
		}
		identities = append(identities, identity)
	}
	return identities, eris.Wrap(rows.Err(), "sqlite: exported identities iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, result *model.Result) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	workflowsJSON, err := json.Marshal(result.Workflows)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal workflows")
	}
	diagnosticsJSON, err := json.Marshal(result.Diagnostics)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal diagnostics")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflows, diagnostics, created_at) VALUES (?, ?, ?, ?)`,
		id, string(workflowsJSON), string(diagnosticsJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:          id,
		Workflows:   result.Workflows,
		Diagnostics: result.Diagnostics,
		CreatedAt:   now,
	}, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflows, diagnostics, created_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, workflows, diagnostics, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.Workflow != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(runs.workflows) WHERE json_each.value = ?)`
		args = append(args, string(filter.Workflow))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

// scanRun passes sql.ErrNoRows through untouched so callers can map it to
// ErrRunNotFound with the run id attached.
func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var workflowsJSON, diagnosticsJSON string

	err := row.Scan(&r.ID, &workflowsJSON, &diagnosticsJSON, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(workflowsJSON), &r.Workflows); err != nil {
		return nil, eris.Wrap(err, "unmarshal workflows")
	}
	if err := json.Unmarshal([]byte(diagnosticsJSON), &r.Diagnostics); err != nil {
		return nil, eris.Wrap(err, "unmarshal diagnostics")
	}
	return &r, nil
}
