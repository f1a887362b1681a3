package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/andre-sav/HADES-sub001/internal/db"
	"github.com/andre-sav/HADES-sub001/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"append_usage":        `INSERT INTO usage_log (id, ts, workflow, credits_used, period_key) VALUES ($1, $2, $3, $4, $5)`,
	"usage_total":         `SELECT COALESCE(SUM(credits_used), 0)::int FROM usage_log WHERE workflow = $1 AND period_key = $2`,
	"insert_run":          `INSERT INTO runs (id, workflows, diagnostics, created_at) VALUES ($1, $2, $3, $4)`,
	"get_run":             `SELECT id, workflows, diagnostics, created_at FROM runs WHERE id = $1`,
	"exported_identities": `SELECT identity FROM export_history`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS usage_log (
	id           TEXT PRIMARY KEY,
	ts           TIMESTAMPTZ NOT NULL,
	workflow     TEXT NOT NULL,
	credits_used INTEGER NOT NULL,
	period_key   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS export_history (
	identity          TEXT PRIMARY KEY,
	first_exported_at TIMESTAMPTZ NOT NULL,
	last_exported_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	workflows   JSONB NOT NULL,
	diagnostics JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_log_workflow_period ON usage_log(workflow, period_key);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_workflows ON runs USING GIN (workflows);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) AppendUsage(ctx context.Context, rec model.CreditUsageRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_log (id, ts, workflow, credits_used, period_key) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Timestamp, string(rec.Workflow), rec.CreditsUsed, rec.PeriodKey,
	)
	return eris.Wrap(err, "postgres: append usage")
}

func (s *PostgresStore) UsageTotal(ctx context.Context, workflow model.Workflow, periodKey string) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(credits_used), 0)::int FROM usage_log WHERE workflow = $1 AND period_key = $2`,
		string(workflow), periodKey,
	).Scan(&total)
	return total, eris.Wrap(err, "postgres: usage total")
}

func (s *PostgresStore) ListUsage(ctx context.Context, workflow model.Workflow, periodKey string) ([]model.CreditUsageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, workflow, credits_used, period_key FROM usage_log
		 WHERE workflow = $1 AND period_key = $2 ORDER BY ts ASC`,
		string(workflow), periodKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list usage")
	}
	defer rows.Close()

	var recs []model.CreditUsageRecord
	for rows.Next() {
		var rec model.CreditUsageRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Workflow, &rec.CreditsUsed, &rec.PeriodKey); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage record")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list usage iterate")
}

// RecordExports bulk-upserts export identities so re-exporting a lead only
// advances last_exported_at.
func (s *PostgresStore) RecordExports(ctx context.Context, identities []string, exportedAt time.Time) error {
	if len(identities) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(identities))
	for _, identity := range identities {
		rows = append(rows, []any{identity, exportedAt, exportedAt})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "export_history",
		Columns:      []string{"identity", "first_exported_at", "last_exported_at"},
		ConflictKeys: []string{"identity"},
		UpdateCols:   []string{"last_exported_at"},
	}, rows)
	return eris.Wrap(err, "postgres: record exports")
}

func (s *PostgresStore) ExportedIdentities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT identity FROM export_history`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: exported identities")
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan identity")
		}
		identities = append(identities, identity)
	}
	return identities, eris.Wrap(rows.Err(), "postgres: exported identities iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, result *model.Result) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	workflowsJSON, err := json.Marshal(result.Workflows)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal workflows")
	}
	diagnosticsJSON, err := json.Marshal(result.Diagnostics)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal diagnostics")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, workflows, diagnostics, created_at) VALUES ($1, $2, $3, $4)`,
		id, workflowsJSON, diagnosticsJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:          id,
		Workflows:   result.Workflows,
		Diagnostics: result.Diagnostics,
		CreatedAt:   now,
	}, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var workflowsJSON, diagnosticsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, workflows, diagnostics, created_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &workflowsJSON, &diagnosticsJSON, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(workflowsJSON, &r.Workflows); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal workflows")
	}
	if err := json.Unmarshal(diagnosticsJSON, &r.Diagnostics); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal diagnostics")
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, workflows, diagnostics, created_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Workflow != "" {
		query += fmt.Sprintf(` AND workflows @> $%d::jsonb`, argIdx)
		args = append(args, fmt.Sprintf("[%q]", string(filter.Workflow)))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var workflowsJSON, diagnosticsJSON []byte

		if err := rows.Scan(&r.ID, &workflowsJSON, &diagnosticsJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(workflowsJSON, &r.Workflows); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal workflows")
		}
		if err := json.Unmarshal(diagnosticsJSON, &r.Diagnostics); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal diagnostics")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
