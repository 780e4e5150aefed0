package service

import (
	"context"
	"strings"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/repo"
)

// Tasks answers ledger queries for the ops API.
type Tasks interface {
	List(ctx context.Context, state data.TaskState) (data.TaskRecords, error)
	ListByRun(ctx context.Context, runID string) (data.TaskRecords, error)
	Manifest() data.Manifest
}

var AllowedStates = map[data.TaskState]bool{
	data.TaskPending:        true,
	data.TaskAlreadyPresent: true,
	data.TaskFetching:       true,
	data.TaskSucceeded:      true,
	data.TaskSkipped:        true,
}

type tasks struct {
	repo     repo.TaskReader
	manifest data.Manifest
}

func NewTasks(repo repo.TaskReader, manifest data.Manifest) Tasks {
	return &tasks{repo: repo, manifest: manifest.Clone()}
}

// List returns every record, or only those in state when it is set.
func (ts *tasks) List(ctx context.Context, state data.TaskState) (data.TaskRecords, error) {
	if state != "" && !AllowedStates[state] {
		return nil, data.ErrBadState
	}
	all, err := ts.repo.List(ctx)
	if err != nil || state == "" {
		return all, err
	}
	out := make(data.TaskRecords, 0, len(all))
	for _, r := range all {
		if r.State == state {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListByRun returns the records of one run; an unknown run is ErrNotFound.
func (ts *tasks) ListByRun(ctx context.Context, runID string) (data.TaskRecords, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, data.ErrNotFound
	}
	recs, err := ts.repo.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, data.ErrNotFound
	}
	return recs, nil
}

func (ts *tasks) Manifest() data.Manifest { return ts.manifest.Clone() }
