package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kythours/modelvol/internal/aria2"
	"github.com/kythours/modelvol/internal/config"
	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/downloader"
	aria2dl "github.com/kythours/modelvol/internal/downloader/aria2"
	"github.com/kythours/modelvol/internal/downloader/httpdl"
	"github.com/kythours/modelvol/internal/ledger"
	"github.com/kythours/modelvol/internal/logging"
	"github.com/kythours/modelvol/internal/manifest"
	"github.com/kythours/modelvol/internal/metrics"
	"github.com/kythours/modelvol/internal/reconciler"
	"github.com/kythours/modelvol/internal/repo"
	"github.com/kythours/modelvol/internal/reqid"
)

// eventBuffer sizes the reporter channel between the reconciler and ledger.
const eventBuffer = 64

var registerMetrics sync.Once

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	logLevel   string
	logFormat  string
	root       string
	backend    string
	manifest   string
	stdout     io.Writer
	stderr     io.Writer
}

// loadConfig reads the config record and applies flag overrides on top.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.root != "" {
		cfg.Volume.Root = o.root
	}
	if o.backend != "" {
		cfg.Fetch.Backend = o.backend
	}
	if o.manifest != "" {
		cfg.Manifest.File = o.manifest
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session holds everything one command invocation wires together.
type session struct {
	cfg      *config.Config
	log      *logging.Logger
	runID    string
	ctx      context.Context
	cancel   context.CancelFunc
	repo     repo.TaskRepo
	pg       *repo.PostgresRepo
	events   chan downloader.Event
	ledger   *ledger.Ledger
	fetcher  downloader.Fetcher
	manifest data.Manifest
	rec      *reconciler.Reconciler
}

// openSession loads config and builds the logger, ledger, fetcher, manifest
// and reconciler. The returned context carries the run ID.
func openSession(parent context.Context, o *globalOptions) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	lg, err := logging.New(cfg.Log, o.stderr)
	if err != nil {
		return nil, err
	}
	registerMetrics.Do(metrics.Register)

	s := &session{cfg: cfg, log: lg, runID: uuid.NewString()}
	s.ctx, s.cancel = context.WithCancel(reqid.WithRun(parent, s.runID))
	log := reqid.Logger(s.ctx, lg.Logger)

	if cfg.Postgres.DSN != "" {
		pg, err := repo.NewPostgresRepo(cfg.Postgres.DSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open ledger store: %w", err)
		}
		s.pg = pg
		s.repo = pg
	} else {
		s.repo = repo.NewInMemoryTaskRepo()
	}

	s.events = make(chan downloader.Event, eventBuffer)
	rep := downloader.NewChanReporter(s.events)
	s.ledger = ledger.New(log, s.repo, s.events)
	s.ledger.Run()

	s.fetcher, err = newFetcher(s.ctx, cfg, rep, log)
	if err != nil {
		s.close()
		return nil, err
	}

	s.manifest, err = loadManifest(cfg)
	if err != nil {
		s.close()
		return nil, err
	}

	s.rec = reconciler.New(log, s.fetcher, reconciler.Options{
		ExistenceFloor: cfg.Volume.ExistenceFloorBytes,
		TrustedHost:    cfg.Fetch.TrustedHost,
		Reporter:       rep,
	})
	log.Info("session ready",
		"backend", cfg.BackendKind(),
		"root", cfg.Volume.Root,
		"tasks", len(s.manifest),
		"credential", cfg.Fetch.Token != "",
		"build_id", cfg.BuildID,
	)
	return s, nil
}

// finish closes the event stream and waits for the ledger to drain it.
func (s *session) finish() {
	if s.events == nil {
		return
	}
	close(s.events)
	s.ledger.Wait()
	s.events = nil
}

func (s *session) close() {
	s.finish()
	if s.cancel != nil {
		s.cancel()
	}
	if s.pg != nil {
		if err := s.pg.Close(); err != nil {
			s.log.Warn("close ledger store", "err", err)
		}
	}
	if err := s.log.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close log file:", err)
	}
}

// plan is the full startup pass for the session's config.
func (s *session) plan() reconciler.Plan {
	return reconciler.Plan{
		Root:       s.cfg.Volume.Root,
		Dirs:       s.cfg.VolumeDirs(),
		SizeFloor:  s.cfg.Volume.SizeFloorBytes,
		Known:      s.cfg.KnownMinimums(),
		Manifest:   s.manifest,
		Credential: s.cfg.Fetch.Token,
	}
}

func newFetcher(ctx context.Context, cfg *config.Config, rep downloader.Reporter, log *slog.Logger) (downloader.Fetcher, error) {
	var f downloader.Fetcher
	switch cfg.BackendKind() {
	case config.BackendAria2:
		cl, err := aria2.NewClient(aria2.Config{
			RPCURL:    cfg.Aria2.RPCURL,
			Secret:    cfg.Aria2.Secret,
			TimeoutMS: cfg.Aria2.TimeoutMS,
		})
		if err != nil {
			return nil, fmt.Errorf("aria2 client: %w", err)
		}
		af := aria2dl.New(cl, aria2dl.Options{
			PollInterval: time.Duration(cfg.Aria2.PollMS) * time.Millisecond,
			Reporter:     rep,
			Logger:       log,
		})
		go af.Run(ctx)
		f = af
	case config.BackendNone:
		f = downloader.NewNoopFetcher(log)
	default:
		f = httpdl.New(httpdl.Options{
			UserAgent: cfg.Fetch.UserAgent,
			Reporter:  rep,
			Logger:    log,
		})
	}
	if p, ok := f.(downloader.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			log.Warn("fetch backend not reachable, missing files will be skipped", "backend", cfg.BackendKind(), "err", err)
		}
	}
	return f, nil
}

func loadManifest(cfg *config.Config) (data.Manifest, error) {
	if cfg.Manifest.File != "" {
		return manifest.Load(cfg.Manifest.File, manifest.Vars(cfg.App.Dir, cfg.Volume.Root))
	}
	return manifest.Default(cfg.App.Dir, cfg.Volume.Root)
}
