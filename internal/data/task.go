package data

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// DownloadTask is one manifest entry: fetch URL into Path.
type DownloadTask struct {
	URL  string `json:"url" toml:"url"`
	Path string `json:"path" toml:"path"`
}

// Name is the destination file name used in log lines.
func (t DownloadTask) Name() string { return filepath.Base(t.Path) }

// Validate checks that both ends of the task are usable.
func (t DownloadTask) Validate() error {
	if strings.TrimSpace(t.URL) == "" {
		return ErrInvalidSource
	}
	if strings.TrimSpace(t.Path) == "" || !filepath.IsAbs(t.Path) {
		return ErrTargetPath
	}
	return nil
}

// Manifest is an ordered list of download tasks. Order carries no dependency
// meaning but is kept for deterministic logs.
type Manifest []DownloadTask

func (m Manifest) ToJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func (m *Manifest) FromJSON(r io.Reader) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(m)
}

// Clone returns a copy of the manifest.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	copy(out, m)
	return out
}

// Validate returns the first invalid entry wrapped with its index.
func (m Manifest) Validate() error {
	for i, t := range m {
		if err := t.Validate(); err != nil {
			return &ManifestError{Index: i, Err: err}
		}
	}
	return nil
}

// TaskState is the lifecycle position of a DownloadTask within one run.
type TaskState string

const (
	TaskPending        TaskState = "Pending"
	TaskAlreadyPresent TaskState = "AlreadyPresent"
	TaskFetching       TaskState = "Fetching"
	TaskSucceeded      TaskState = "Succeeded"
	TaskSkipped        TaskState = "Skipped"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskSkipped
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to TaskState) bool {
	switch from {
	case TaskPending:
		return to == TaskAlreadyPresent || to == TaskFetching
	case TaskAlreadyPresent:
		return to == TaskSucceeded
	case TaskFetching:
		return to == TaskSucceeded || to == TaskSkipped
	default:
		return false
	}
}

// TaskResult is the resolved outcome of one task.
type TaskResult struct {
	Task    DownloadTask
	State   TaskState
	Fetched bool
	Size    int64
	Err     error
}

// TaskRecord is the persisted view of a TaskResult in the run ledger.
type TaskRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"runId"`
	Fingerprint string    `json:"fingerprint"`
	URL         string    `json:"url"`
	Path        string    `json:"path"`
	State       TaskState `json:"state"`
	Fetched     bool      `json:"fetched"`
	Size        int64     `json:"size"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
}

type TaskRecords []*TaskRecord

func (r *TaskRecord) Clone() *TaskRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func (rs TaskRecords) Clone() TaskRecords {
	out := make(TaskRecords, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Clone())
	}
	return out
}

func (rs TaskRecords) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(rs) }

// Tally aggregates one scrub + reconcile pass.
type Tally struct {
	RunID      string `json:"runId"`
	Cleaned    int    `json:"cleaned"`
	Present    int    `json:"present"`
	Downloaded int    `json:"downloaded"`
	Skipped    int    `json:"skipped"`
}

// Add folds a task result into the tally.
func (t *Tally) Add(r TaskResult) {
	switch {
	case r.State == TaskSkipped:
		t.Skipped++
	case r.State == TaskSucceeded && r.Fetched:
		t.Downloaded++
	case r.State == TaskSucceeded:
		t.Present++
	}
}
