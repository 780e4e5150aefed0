// Package ledger persists task outcomes reported during a run.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/downloader"
	"github.com/kythours/modelvol/internal/metrics"
	"github.com/kythours/modelvol/internal/repo"
)

// Ledger consumes reconciler events and writes task records to the repo.
type Ledger struct {
	repo   repo.TaskRepo
	events <-chan downloader.Event
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Ledger reading from events.
func New(log *slog.Logger, repo repo.TaskRepo, events <-chan downloader.Event) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{repo: repo, events: events, log: log, ctx: context.Background()}
}

// Run starts the consumer loop. It ends when the events channel is closed
// or Stop is called.
func (l *Ledger) Run() {
	l.stop = make(chan struct{})
	l.ctx, l.cancel = context.WithCancel(l.ctx)
	l.log = l.log.With("operation_id", uuid.NewString())
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.stop:
				return
			case e, ok := <-l.events:
				if !ok {
					return
				}
				l.handle(e)
			}
		}
	}()
}

// Wait blocks until the loop has drained a closed events channel.
func (l *Ledger) Wait() { l.wg.Wait() }

// Stop terminates the loop without draining.
func (l *Ledger) Stop() {
	if l.stop != nil {
		close(l.stop)
		if l.cancel != nil {
			l.cancel()
		}
		l.wg.Wait()
		l.stop = nil
	}
}

func (l *Ledger) handle(e downloader.Event) {
	metrics.TaskEvents.WithLabelValues(strings.ToLower(string(e.Type))).Inc()

	var state data.TaskState
	switch e.Type {
	case downloader.EventFetching:
		state = data.TaskFetching
	case downloader.EventPresent:
		state = data.TaskAlreadyPresent
	case downloader.EventSucceeded:
		state = data.TaskSucceeded
	case downloader.EventSkipped:
		state = data.TaskSkipped
	case downloader.EventProgress:
		if e.Progress != nil {
			l.log.Info("progress", "task_id", short(e.TaskID), "path", e.Path, "completed", e.Progress.Completed, "total", e.Progress.Total, "speed", e.Progress.Speed)
		}
		return
	case downloader.EventScrubbed:
		l.log.Debug("scrubbed", "path", e.Path, "size", e.Size, "reason", e.Err)
		return
	default:
		l.log.Warn("unknown event type", "task_id", short(e.TaskID), "type", e.Type)
		return
	}

	if e.RunID == "" || e.TaskID == "" {
		l.log.Warn("event without run or task id", "type", e.Type, "path", e.Path)
		return
	}
	if !l.allowed(e.RunID, e.TaskID, state) {
		return
	}
	rec := &data.TaskRecord{
		RunID:       e.RunID,
		Fingerprint: e.TaskID,
		URL:         e.URL,
		Path:        e.Path,
		State:       state,
		Fetched:     e.Fetched,
		Size:        e.Size,
		Error:       e.Err,
		StartedAt:   e.At,
	}
	if e.Type.IsTerminal() {
		rec.FinishedAt = e.At
	}
	if _, err := l.repo.Upsert(l.ctx, rec); err != nil {
		l.log.Error("record task", "task_id", short(e.TaskID), "state", state, "err", err)
		return
	}
	l.log.Debug("recorded task", "task_id", short(e.TaskID), "state", state)
}

// allowed checks state against the stored record. A task with no record is
// Pending; repeating the current state is accepted.
func (l *Ledger) allowed(runID, taskID string, state data.TaskState) bool {
	from := data.TaskPending
	prev, err := l.repo.Get(l.ctx, runID, taskID)
	switch {
	case err == nil:
		from = prev.State
	case !errors.Is(err, data.ErrNotFound):
		l.log.Error("load task", "task_id", short(taskID), "err", err)
		return false
	}
	if from == state || data.CanTransition(from, state) {
		return true
	}
	l.log.Warn("dropping out-of-order event", "task_id", short(taskID), "from", from, "to", state)
	return false
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
