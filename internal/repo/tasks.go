package repo

import (
	"context"

	"github.com/kythours/modelvol/internal/data"
)

// TaskRepo stores one record per (run, task fingerprint).
type TaskRepo interface {
	TaskReader
	TaskWriter
}

type TaskReader interface {
	List(ctx context.Context) (data.TaskRecords, error)
	ListByRun(ctx context.Context, runID string) (data.TaskRecords, error)
	Get(ctx context.Context, runID, fingerprint string) (*data.TaskRecord, error)
}

type TaskWriter interface {
	// Upsert inserts rec or replaces the record with the same run and
	// fingerprint, keeping the original ID and StartedAt.
	Upsert(ctx context.Context, rec *data.TaskRecord) (*data.TaskRecord, error)
}
