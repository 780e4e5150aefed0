package httpdl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/downloader"
	"github.com/kythours/modelvol/internal/metrics"
	"github.com/kythours/modelvol/internal/reqid"
)

const backend = downloader.BackendHTTP

// partSuffix marks in-flight files; they are renamed over Dest on success.
const partSuffix = downloader.PartSuffix

type fsOps interface {
	Create(string) (io.WriteCloser, error)
	Rename(string, string) error
	Remove(string) error
}

type osFS struct{}

func (osFS) Create(p string) (io.WriteCloser, error) { return os.Create(p) }
func (osFS) Rename(o, n string) error                { return os.Rename(o, n) }
func (osFS) Remove(p string) error                   { return os.Remove(p) }

// Options configures a Fetcher. Zero values pick defaults.
type Options struct {
	Client           *http.Client
	UserAgent        string
	ProgressInterval time.Duration
	Reporter         downloader.Reporter
	Logger           *slog.Logger
}

// Fetcher downloads over plain HTTP(S) GET, following redirects. The
// Authorization header is set only when the request carries a token; Go's
// client drops it on redirects that leave the original host.
type Fetcher struct {
	cl    *http.Client
	ua    string
	every time.Duration
	rep   downloader.Reporter
	log   *slog.Logger
	fs    fsOps
	now   func() time.Time
}

var _ downloader.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher from opts.
func New(opts Options) *Fetcher {
	f := &Fetcher{
		cl:    opts.Client,
		ua:    opts.UserAgent,
		every: opts.ProgressInterval,
		rep:   opts.Reporter,
		log:   opts.Logger,
		fs:    osFS{},
		now:   time.Now,
	}
	if f.cl == nil {
		f.cl = DefaultClient()
	}
	if f.every <= 0 {
		f.every = 5 * time.Second
	}
	if f.rep == nil {
		f.rep = downloader.Discard
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

// DefaultClient has connection-level timeouts only. Transfers of several
// gigabytes must not be cut by an overall deadline.
func DefaultClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   15 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// Fetch implements downloader.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, r downloader.Request) error {
	timer := prometheus.NewTimer(metrics.FetchLatency.WithLabelValues(backend))
	defer timer.ObserveDuration()
	log := reqid.Logger(ctx, f.log)
	runID, _ := reqid.RunFrom(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", data.ErrTransferFailure, err)
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	if f.ua != "" {
		req.Header.Set("User-Agent", f.ua)
	}

	resp, err := f.cl.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", data.ErrTransferFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("%w: http %d", data.ErrTransferFailure, resp.StatusCode)
	}

	tmp := r.Dest + partSuffix
	w, err := f.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	pw := &progressWriter{
		w:     w,
		total: resp.ContentLength,
		every: f.every,
		now:   f.now,
		emit: func(p downloader.Progress) {
			f.rep.Report(downloader.Event{RunID: runID, TaskID: r.TaskID, URL: r.URL, Path: r.Dest, Type: downloader.EventProgress, Progress: &p, At: f.now()})
		},
	}
	pw.start = f.now()
	pw.last = pw.start
	n, copyErr := io.Copy(pw, resp.Body)
	closeErr := w.Close()
	metrics.FetchBytes.WithLabelValues(backend).Add(float64(n))

	if err := errors.Join(copyErr, closeErr); err != nil {
		f.discard(log, tmp)
		return fmt.Errorf("%w: after %d bytes: %v", data.ErrTransferFailure, n, err)
	}
	if n == 0 {
		f.discard(log, tmp)
		return downloader.ErrNoContent
	}
	if err := f.fs.Rename(tmp, r.Dest); err != nil {
		f.discard(log, tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	log.Debug("fetch complete", "url", r.URL, "dest", r.Dest, "bytes", n)
	return nil
}

func (f *Fetcher) discard(log *slog.Logger, p string) {
	if err := f.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove partial", "path", p, "err", err)
	}
}
