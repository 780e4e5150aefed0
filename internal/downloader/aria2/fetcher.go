package aria2dl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kythours/modelvol/internal/aria2"
	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/downloader"
	"github.com/kythours/modelvol/internal/metrics"
	"github.com/kythours/modelvol/internal/reqid"
)

const backend = downloader.BackendAria2

// maxStatusErrors is how many consecutive tellStatus failures end a fetch.
const maxStatusErrors = 5

type fsOps interface {
	Remove(string) error
}

type osFS struct{}

func (osFS) Remove(p string) error { return os.Remove(p) }

// Options configures a Fetcher. Zero values pick defaults.
type Options struct {
	PollInterval time.Duration
	Reporter     downloader.Reporter
	Logger       *slog.Logger
}

// Fetcher hands transfers to an aria2 daemon and blocks until each one ends.
// Completion is learned from websocket notifications when Run is active and
// from tellStatus polling otherwise.
type Fetcher struct {
	cl   *aria2.Client
	rep  downloader.Reporter
	log  *slog.Logger
	fs   fsOps
	poll time.Duration

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

var (
	_ downloader.Fetcher = (*Fetcher)(nil)
	_ downloader.Pinger  = (*Fetcher)(nil)
)

// New creates a Fetcher using the provided aria2 client.
func New(cl *aria2.Client, opts Options) *Fetcher {
	f := &Fetcher{
		cl:      cl,
		rep:     opts.Reporter,
		log:     opts.Logger,
		fs:      osFS{},
		poll:    opts.PollInterval,
		waiters: make(map[string]chan struct{}),
	}
	if f.poll <= 0 {
		f.poll = time.Second
	}
	if f.rep == nil {
		f.rep = downloader.Discard
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

// Ping implements downloader.Pinger.
func (f *Fetcher) Ping(ctx context.Context) error { return f.cl.Ping(ctx) }

// Fetch implements downloader.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, r downloader.Request) error {
	timer := prometheus.NewTimer(metrics.FetchLatency.WithLabelValues(backend))
	defer timer.ObserveDuration()
	log := reqid.Logger(ctx, f.log)
	runID, _ := reqid.RunFrom(ctx)

	gid, err := f.addURI(ctx, r)
	if err != nil {
		return fmt.Errorf("%w: addUri: %v", data.ErrTransferFailure, err)
	}
	log = log.With("gid", gid)
	log.Debug("aria2 transfer queued", "url", r.URL, "dest", r.Dest)

	wake := f.watch(gid)
	defer f.unwatch(gid)
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	var last downloader.Progress
	failures := 0
	for {
		st, err := f.tellStatus(ctx, gid)
		switch {
		case err != nil && ctx.Err() == nil:
			failures++
			log.Warn("aria2 tellStatus error", "err", err, "attempt", failures)
			if failures >= maxStatusErrors {
				return fmt.Errorf("%w: lost track of aria2 transfer: %v", data.ErrTransferFailure, err)
			}
		case err == nil:
			failures = 0
			if done, ferr := f.settle(ctx, log, r, gid, st); done {
				return ferr
			}
			if p := st.progress(); p != last {
				last = p
				f.rep.Report(downloader.Event{RunID: runID, TaskID: r.TaskID, URL: r.URL, Path: r.Dest, Type: downloader.EventProgress, Progress: &p, At: time.Now()})
			}
		}

		select {
		case <-ctx.Done():
			f.abort(gid, log)
			f.removeSidecar(log, r.Dest)
			return fmt.Errorf("%w: %v", data.ErrTransferFailure, ctx.Err())
		case <-wake:
		case <-ticker.C:
		}
	}
}

// settle maps a terminal aria2 status onto the fetch result.
func (f *Fetcher) settle(ctx context.Context, log *slog.Logger, r downloader.Request, gid string, st *status) (bool, error) {
	switch st.Status {
	case statusComplete:
		f.forget(ctx, gid)
		n := parseInt(st.CompletedLength)
		metrics.FetchBytes.WithLabelValues(backend).Add(float64(n))
		if n == 0 {
			return true, downloader.ErrNoContent
		}
		log.Debug("fetch complete", "url", r.URL, "dest", r.Dest, "bytes", n)
		return true, nil
	case statusError, statusRemoved:
		f.forget(ctx, gid)
		f.removeSidecar(log, r.Dest)
		msg := st.ErrorMessage
		if msg == "" {
			msg = st.Status
		}
		return true, fmt.Errorf("%w: aria2 code %s: %s", data.ErrTransferFailure, st.ErrorCode, msg)
	}
	return false, nil
}

func (f *Fetcher) addURI(ctx context.Context, r downloader.Request) (string, error) {
	opts := map[string]any{
		"dir":                filepath.Dir(r.Dest),
		"out":                filepath.Base(r.Dest),
		"allow-overwrite":    "true",
		"auto-file-renaming": "false",
	}
	if r.Token != "" {
		opts["header"] = []string{"Authorization: Bearer " + r.Token}
	}
	res, err := f.cl.Call(ctx, "aria2.addUri", []string{r.URL}, opts)
	if err != nil {
		return "", err
	}
	var gid string
	if err := json.Unmarshal(res, &gid); err != nil {
		return "", fmt.Errorf("parse addUri result: %w", err)
	}
	return gid, nil
}

// abort stops a transfer whose caller has gone away. The fetch context is
// already done, so a short detached one is used.
func (f *Fetcher) abort(gid string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.cl.Call(ctx, "aria2.forceRemove", gid); err != nil {
		log.Warn("aria2 forceRemove", "err", err)
	}
	f.forget(ctx, gid)
}

// forget clears the finished result from the daemon's session (best effort).
func (f *Fetcher) forget(ctx context.Context, gid string) {
	_, _ = f.cl.Call(ctx, "aria2.removeDownloadResult", gid)
}

// removeSidecar deletes the ".aria2" control file aria2 keeps next to an
// unfinished output. The output itself is left to the reconciler.
func (f *Fetcher) removeSidecar(log *slog.Logger, dest string) {
	p := dest + ".aria2"
	if err := f.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove aria2 control file", "path", p, "err", err)
	}
}
