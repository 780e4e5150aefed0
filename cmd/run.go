package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kythours/modelvol/internal/launcher"
	"github.com/kythours/modelvol/internal/reqid"
	"github.com/kythours/modelvol/internal/router"
	"github.com/kythours/modelvol/internal/service"
)

var (
	errSyncing = errors.New("volume sync in progress")
	errAppDown = errors.New("app not running")
)

// readiness tracks what /readyz reports while run is active. A fatal sync
// ends the run, so there is no failed state to report.
type readiness struct {
	synced atomic.Bool
	proc   atomic.Pointer[launcher.Process]
	ping   func(context.Context) error
}

func (r *readiness) check(ctx context.Context) error {
	if !r.synced.Load() {
		return errSyncing
	}
	if p := r.proc.Load(); p == nil || !p.Alive() {
		return errAppDown
	}
	if r.ping != nil {
		if err := r.ping(ctx); err != nil {
			return fmt.Errorf("ledger store: %w", err)
		}
	}
	return nil
}

func newRunCmd(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync the volume, then launch the app and serve the ops endpoints",
		Long: `Run starts the ops server, performs the full volume sync, then launches the
application in app.dir with the configured command. It exits with the
application's exit code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer s.close()
			return runApp(cmd, s)
		},
	}
	addFetchFlags(cmd, o)
	return cmd
}

func runApp(cmd *cobra.Command, s *session) error {
	log := reqid.Logger(s.ctx, s.log.Logger)
	ready := &readiness{}
	if s.pg != nil {
		ready.ping = s.pg.Ping
	}

	srv := &http.Server{
		Addr: s.cfg.Ops.Listen,
		Handler: router.New(log, service.NewTasks(s.repo, s.manifest), router.Options{
			Token: s.cfg.Ops.Token,
			Ready: ready.check,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	runCtx, stop := context.WithCancel(s.ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		log.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log.Info("shutting down ops server")
		return srv.Shutdown(ctx)
	})

	g.Go(func() error {
		defer stop()
		tally, results, err := syncVolume(s)
		printTally(cmd, tally, results)
		if err != nil {
			return err
		}
		ready.synced.Store(true)

		proc := launcher.New(log, launcher.Options{
			Command: s.cfg.App.Command,
			Dir:     s.cfg.App.Dir,
			Env:     launcher.AppEnv(s.cfg.App.Port, s.cfg.App.OutputDir, s.cfg.BuildID),
			Stdout:  cmd.OutOrStdout(),
			Stderr:  cmd.ErrOrStderr(),
		})
		if err := proc.Start(gctx); err != nil {
			return err
		}
		ready.proc.Store(proc)

		err = proc.Wait()
		code := proc.ExitCode()
		if s.ctx.Err() != nil {
			log.Info("app stopped", "code", code)
			return nil
		}
		log.Info("app exited", "code", code, "err", err)
		if err != nil {
			if code <= 0 {
				code = 1
			}
			return &ExitError{Code: code, Err: fmt.Errorf("app exited: %w", err)}
		}
		return nil
	})

	return g.Wait()
}
