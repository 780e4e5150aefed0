package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/google/uuid"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/fp"
)

// PostgresRepo implements TaskRepo backed by PostgreSQL. It expects a table
// `task_records` with a unique index on (run_id, fingerprint).
type PostgresRepo struct {
	db *sql.DB
}

var _ TaskRepo = (*PostgresRepo)(nil)

// NewPostgresRepo constructs a repository using the provided DSN.
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &PostgresRepo{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) Close() error { return r.db.Close() }

// Ping reports database reachability for readiness checks.
func (r *PostgresRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *PostgresRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS task_records (
    id UUID PRIMARY KEY,
    run_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    url TEXT NOT NULL,
    path TEXT NOT NULL,
    state TEXT NOT NULL,
    fetched BOOLEAN NOT NULL DEFAULT FALSE,
    size BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    UNIQUE (run_id, fingerprint)
);
`)
	return err
}

const selectCols = `SELECT id,run_id,fingerprint,url,path,state,fetched,size,error,started_at,finished_at FROM task_records`

// List implements TaskReader.List
func (r *PostgresRepo) List(ctx context.Context) (data.TaskRecords, error) {
	return r.query(ctx, selectCols+` ORDER BY started_at ASC, path ASC`)
}

// ListByRun implements TaskReader.ListByRun
func (r *PostgresRepo) ListByRun(ctx context.Context, runID string) (data.TaskRecords, error) {
	return r.query(ctx, selectCols+` WHERE run_id=$1 ORDER BY started_at ASC, path ASC`, runID)
}

// Get implements TaskReader.Get
func (r *PostgresRepo) Get(ctx context.Context, runID, fingerprint string) (*data.TaskRecord, error) {
	row := r.db.QueryRowContext(ctx, selectCols+` WHERE run_id=$1 AND fingerprint=$2`, runID, fingerprint)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, data.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Upsert implements TaskWriter.Upsert
func (r *PostgresRepo) Upsert(ctx context.Context, rec *data.TaskRecord) (*data.TaskRecord, error) {
	fprint := rec.Fingerprint
	if fprint == "" {
		fprint = fp.Fingerprint(rec.URL, rec.Path)
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	var finished any
	if !rec.FinishedAt.IsZero() {
		finished = rec.FinishedAt
	}
	row := r.db.QueryRowContext(ctx, `
INSERT INTO task_records (id,run_id,fingerprint,url,path,state,fetched,size,error,started_at,finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id, fingerprint) DO UPDATE SET
    url=EXCLUDED.url,
    path=EXCLUDED.path,
    state=EXCLUDED.state,
    fetched=EXCLUDED.fetched,
    size=EXCLUDED.size,
    error=EXCLUDED.error,
    finished_at=EXCLUDED.finished_at
RETURNING id,run_id,fingerprint,url,path,state,fetched,size,error,started_at,finished_at
`, id, rec.RunID, fprint, rec.URL, rec.Path, string(rec.State), rec.Fetched, rec.Size, rec.Error, rec.StartedAt, finished)
	return scanRecord(row)
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) (data.TaskRecords, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(data.TaskRecords, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(rs rowScanner) (*data.TaskRecord, error) {
	var (
		rec      data.TaskRecord
		state    string
		finished sql.NullTime
	)
	if err := rs.Scan(&rec.ID, &rec.RunID, &rec.Fingerprint, &rec.URL, &rec.Path, &state, &rec.Fetched, &rec.Size, &rec.Error, &rec.StartedAt, &finished); err != nil {
		return nil, err
	}
	rec.State = data.TaskState(state)
	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	return &rec, nil
}
