package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/fp"
)

type InMemoryTaskRepo struct {
	mu      sync.RWMutex
	records data.TaskRecords
	index   map[string]int
}

func NewInMemoryTaskRepo() *InMemoryTaskRepo {
	return &InMemoryTaskRepo{
		records: make(data.TaskRecords, 0),
		index:   make(map[string]int),
	}
}

var _ TaskRepo = (*InMemoryTaskRepo)(nil)

func key(runID, fingerprint string) string { return runID + "\x00" + fingerprint }

func (r *InMemoryTaskRepo) List(ctx context.Context) (data.TaskRecords, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records.Clone(), nil
}

func (r *InMemoryTaskRepo) ListByRun(ctx context.Context, runID string) (data.TaskRecords, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(data.TaskRecords, 0)
	for _, rec := range r.records {
		if rec.RunID == runID {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (r *InMemoryTaskRepo) Get(ctx context.Context, runID, fingerprint string) (*data.TaskRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[key(runID, fingerprint)]
	if !ok {
		return nil, data.ErrNotFound
	}
	return r.records[i].Clone(), nil
}

func (r *InMemoryTaskRepo) Upsert(ctx context.Context, rec *data.TaskRecord) (*data.TaskRecord, error) {
	next := rec.Clone()
	if next.Fingerprint == "" {
		next.Fingerprint = fp.Fingerprint(next.URL, next.Path)
	}
	k := key(next.RunID, next.Fingerprint)

	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[k]; ok {
		cur := r.records[i]
		next.ID = cur.ID
		if !cur.StartedAt.IsZero() {
			next.StartedAt = cur.StartedAt
		}
		r.records[i] = next
		return next.Clone(), nil
	}
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	r.index[k] = len(r.records)
	r.records = append(r.records, next)
	return next.Clone(), nil
}
