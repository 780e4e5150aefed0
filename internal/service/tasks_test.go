package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/repo"
)

func seed(t *testing.T) repo.TaskRepo {
	t.Helper()
	rpo := repo.NewInMemoryTaskRepo()
	ctx := context.Background()
	for _, r := range []*data.TaskRecord{
		{RunID: "r1", URL: "https://h/a", Path: "/v/a.pt", State: data.TaskSucceeded},
		{RunID: "r1", URL: "https://h/b", Path: "/v/b.pt", State: data.TaskSkipped},
		{RunID: "r2", URL: "https://h/a", Path: "/v/a.pt", State: data.TaskSucceeded},
	} {
		if _, err := rpo.Upsert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	return rpo
}

func TestTasksList(t *testing.T) {
	svc := NewTasks(seed(t), nil)
	ctx := context.Background()

	all, err := svc.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("List all: %d %v", len(all), err)
	}
	skipped, err := svc.List(ctx, data.TaskSkipped)
	if err != nil || len(skipped) != 1 || skipped[0].Path != "/v/b.pt" {
		t.Fatalf("List skipped: %+v %v", skipped, err)
	}
	if _, err := svc.List(ctx, "Exploded"); !errors.Is(err, data.ErrBadState) {
		t.Fatalf("expected ErrBadState, got %v", err)
	}
}

func TestTasksListByRun(t *testing.T) {
	svc := NewTasks(seed(t), nil)
	ctx := context.Background()

	recs, err := svc.ListByRun(ctx, "r1")
	if err != nil || len(recs) != 2 {
		t.Fatalf("ListByRun: %d %v", len(recs), err)
	}
	for _, id := range []string{"", "  ", "r9"} {
		if _, err := svc.ListByRun(ctx, id); !errors.Is(err, data.ErrNotFound) {
			t.Fatalf("ListByRun(%q): expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestTasksManifestIsCopy(t *testing.T) {
	m := data.Manifest{{URL: "https://h/a", Path: "/v/a.pt"}}
	svc := NewTasks(repo.NewInMemoryTaskRepo(), m)
	m[0].URL = "changed"
	got := svc.Manifest()
	if got[0].URL != "https://h/a" {
		t.Fatalf("manifest aliased caller slice")
	}
	got[0].Path = "changed"
	if svc.Manifest()[0].Path != "/v/a.pt" {
		t.Fatalf("manifest aliased returned slice")
	}
}
