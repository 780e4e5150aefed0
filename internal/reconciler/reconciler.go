// Package reconciler brings the model volume in line with a manifest: it
// deletes weight files that fail validation, then fetches whatever is missing.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/downloader"
	"github.com/kythours/modelvol/internal/fp"
	"github.com/kythours/modelvol/internal/metrics"
	"github.com/kythours/modelvol/internal/reqid"
)

// DefaultTrustedHost is the only host that receives the bearer credential
// unless configured otherwise.
const DefaultTrustedHost = "huggingface.co"

type fsOps interface {
	Stat(string) (fs.FileInfo, error)
	Remove(string) error
	MkdirAll(string, fs.FileMode) error
}

type osFS struct{}

func (osFS) Stat(p string) (fs.FileInfo, error)     { return os.Stat(p) }
func (osFS) Remove(p string) error                  { return os.Remove(p) }
func (osFS) MkdirAll(p string, m fs.FileMode) error { return os.MkdirAll(p, m) }

// Options configures a Reconciler. Zero values pick defaults.
type Options struct {
	// ExistenceFloor is the size a destination must exceed to count as
	// present, both before and after a fetch.
	ExistenceFloor int64
	TrustedHost    string
	Reporter       downloader.Reporter
}

// Reconciler runs scrub and reconcile passes sequentially on the calling
// goroutine.
type Reconciler struct {
	log     *slog.Logger
	fetcher downloader.Fetcher
	floor   int64
	trusted string
	rep     downloader.Reporter
	fs      fsOps
	now     func() time.Time
}

// New creates a Reconciler that fetches through f.
func New(log *slog.Logger, f downloader.Fetcher, opts Options) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	r := &Reconciler{
		log:     log,
		fetcher: f,
		floor:   opts.ExistenceFloor,
		trusted: strings.ToLower(strings.TrimSpace(opts.TrustedHost)),
		rep:     opts.Reporter,
		fs:      osFS{},
		now:     time.Now,
	}
	if r.floor <= 0 {
		r.floor = data.MiB
	}
	if r.trusted == "" {
		r.trusted = DefaultTrustedHost
	}
	if r.rep == nil {
		r.rep = downloader.Discard
	}
	return r
}

// Prepare ensures every directory in dirs exists. A failure here means the
// volume is not writable and is returned as is.
func (r *Reconciler) Prepare(dirs []string) error {
	for _, d := range dirs {
		if err := r.fs.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("prepare %s: %w", d, err)
		}
	}
	return nil
}

// Reconcile resolves every task of m to Succeeded or Skipped, in order. The
// returned error is non-nil only when a destination directory cannot be
// created; results gathered so far are returned with it.
func (r *Reconciler) Reconcile(ctx context.Context, m data.Manifest, credential string) ([]data.TaskResult, error) {
	log := reqid.Logger(ctx, r.log)
	results := make([]data.TaskResult, 0, len(m))
	for _, t := range m {
		res, err := r.reconcileOne(ctx, log, t, credential)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, log *slog.Logger, t data.DownloadTask, credential string) (data.TaskResult, error) {
	id := fp.Fingerprint(t.URL, t.Path)
	runID, _ := reqid.RunFrom(ctx)
	started := r.now()
	ev := func(typ downloader.EventType, size int64, fetched bool, err error) {
		e := downloader.Event{RunID: runID, TaskID: id, URL: t.URL, Path: t.Path, Type: typ, Size: size, Fetched: fetched, At: r.now()}
		if err != nil {
			e.Err = err.Error()
		}
		r.rep.Report(e)
	}
	log = log.With("task_id", id[:12], "name", t.Name())

	if err := r.fs.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return data.TaskResult{}, fmt.Errorf("create directory for %s: %w", t.Path, err)
	}

	if size, ok := r.sizeOf(t.Path); ok && size > r.floor {
		log.Info("already present", "size_mb", toMB(size))
		ev(downloader.EventPresent, size, false, nil)
		ev(downloader.EventSucceeded, size, false, nil)
		return data.TaskResult{Task: t, State: data.TaskSucceeded, Size: size}, nil
	}

	r.remove(log, t.Path)
	if r.remove(log, t.Path+downloader.PartSuffix) {
		log.Info("removed partial from an earlier run", "path", t.Path+downloader.PartSuffix)
	}

	log.Info("fetching", "url", t.URL)
	ev(downloader.EventFetching, 0, false, nil)
	metrics.ActiveFetches.Inc()
	fetchErr := r.fetcher.Fetch(ctx, downloader.Request{
		URL:    t.URL,
		Dest:   t.Path,
		Token:  r.tokenFor(t.URL, credential),
		TaskID: id,
	})
	metrics.ActiveFetches.Dec()

	if size, ok := r.sizeOf(t.Path); ok && size > r.floor {
		if fetchErr != nil {
			log.Warn("fetch reported an error but the file passed the size check", "err", fetchErr)
		}
		log.Info("downloaded", "size_mb", toMB(size), "elapsed", r.now().Sub(started).Round(time.Millisecond))
		ev(downloader.EventSucceeded, size, true, nil)
		return data.TaskResult{Task: t, State: data.TaskSucceeded, Fetched: true, Size: size}, nil
	}

	err := fetchErr
	if err == nil || errors.Is(err, downloader.ErrNoContent) {
		err = fmt.Errorf("%w: result below %d bytes", data.ErrTransferFailure, r.floor)
	}
	r.remove(log, t.Path)
	r.remove(log, t.Path+downloader.PartSuffix)
	log.Warn("skipped", "url", t.URL, "err", err)
	ev(downloader.EventSkipped, 0, true, err)
	return data.TaskResult{Task: t, State: data.TaskSkipped, Fetched: true, Err: err}, nil
}

// tokenFor scopes credential to the trusted host and its subdomains.
func (r *Reconciler) tokenFor(rawURL, credential string) string {
	if credential == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == r.trusted || strings.HasSuffix(host, "."+r.trusted) {
		return credential
	}
	return ""
}

func (r *Reconciler) sizeOf(p string) (int64, bool) {
	fi, err := r.fs.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return 0, false
	}
	return fi.Size(), true
}

func (r *Reconciler) remove(log *slog.Logger, p string) bool {
	err := r.fs.Remove(p)
	switch {
	case err == nil:
		return true
	case errors.Is(err, fs.ErrNotExist):
		return false
	default:
		log.Warn("remove", "path", p, "err", err)
		return false
	}
}

func toMB(n int64) string { return fmt.Sprintf("%.1f", float64(n)/float64(data.MiB)) }
