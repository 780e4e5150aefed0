package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kythours/modelvol/internal/data"
)

// checkTestcontainersAvailable reports whether a container provider can be
// reached. Provider detection may panic when no daemon socket exists.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "modelvol",
				"POSTGRES_PASSWORD": "modelvol",
				"POSTGRES_DB":       "modelvol",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("postgres://modelvol:modelvol@%s:%s/modelvol?sslmode=disable", host, port.Port())
}

func TestPostgresRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping postgres integration test: testcontainers provider not available")
	}

	repo, err := NewPostgresRepo(startPostgres(t))
	if err != nil {
		t.Fatalf("NewPostgresRepo: %v", err)
	}
	defer func() { _ = repo.Close() }()
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond)

	first, err := repo.Upsert(ctx, &data.TaskRecord{RunID: "run1", URL: "https://h/a", Path: "/v/a.pt", State: data.TaskFetching, StartedAt: start})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !first.FinishedAt.IsZero() {
		t.Fatalf("FinishedAt should be unset: %v", first.FinishedAt)
	}

	done, err := repo.Upsert(ctx, &data.TaskRecord{RunID: "run1", URL: "https://h/a", Path: "/v/a.pt", State: data.TaskSucceeded, Fetched: true, Size: 7, StartedAt: start.Add(time.Minute), FinishedAt: start.Add(2 * time.Minute)})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if done.ID != first.ID || !done.StartedAt.Equal(start) || done.State != data.TaskSucceeded || !done.Fetched {
		t.Fatalf("unexpected upserted record: %+v", done)
	}

	if _, err := repo.Upsert(ctx, &data.TaskRecord{RunID: "run2", URL: "https://h/a", Path: "/v/a.pt", State: data.TaskSkipped, Error: "transfer failure", StartedAt: start}); err != nil {
		t.Fatalf("Upsert run2: %v", err)
	}
	all, err := repo.List(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("List: %d %v", len(all), err)
	}
	byRun, err := repo.ListByRun(ctx, "run2")
	if err != nil || len(byRun) != 1 || byRun[0].Error != "transfer failure" {
		t.Fatalf("ListByRun: %+v %v", byRun, err)
	}
	if _, err := repo.Get(ctx, "run3", first.Fingerprint); !errors.Is(err, data.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
