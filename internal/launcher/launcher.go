// Package launcher starts the web application once the volume is ready.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"mvdan.cc/sh/v3/shell"
)

var (
	ErrEmptyCommand = errors.New("empty app command")
	ErrNotStarted   = errors.New("app not started")
	ErrStarted      = errors.New("app already started")
)

// Options describe the child process. Env is added on top of the inherited
// environment and is also what $VAR references in Command expand against.
type Options struct {
	Command string
	Dir     string
	Env     map[string]string
	Stdout  io.Writer
	Stderr  io.Writer
	// StopGrace is how long the child gets between SIGTERM and SIGKILL.
	StopGrace time.Duration
}

// AppEnv returns the variables the app command can reference.
func AppEnv(port int, outputDir, buildID string) map[string]string {
	return map[string]string{
		"PORT":       strconv.Itoa(port),
		"OUTPUT_DIR": outputDir,
		"BUILD_ID":   buildID,
	}
}

// Args splits command into argv the way a POSIX shell would, expanding $VAR
// from env first and then the process environment.
func Args(command string, env map[string]string) ([]string, error) {
	args, err := shell.Fields(command, func(name string) string {
		if v, ok := env[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
	if err != nil {
		return nil, fmt.Errorf("parse app command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return args, nil
}

// Process is one launch of the app.
type Process struct {
	opts Options
	log  *slog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func New(log *slog.Logger, opts Options) *Process {
	if log == nil {
		log = slog.Default()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 10 * time.Second
	}
	return &Process{opts: opts, log: log}
}

// Start launches the child. Cancelling ctx sends SIGTERM, then SIGKILL after
// the grace period.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return ErrStarted
	}
	args, err := Args(p.opts.Command, p.opts.Env)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = p.opts.Dir
	cmd.Env = os.Environ()
	for k, v := range p.opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = p.opts.Stdout
	cmd.Stderr = p.opts.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = p.opts.StopGrace

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", args[0], err)
	}
	p.cmd = cmd
	p.done = make(chan struct{})
	p.log.Info("app started", "pid", cmd.Process.Pid, "argv0", args[0], "dir", p.opts.Dir)

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	return nil
}

// Wait blocks until the child exits and returns its exit error, if any.
func (p *Process) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	<-done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Alive reports whether the child was started and has not exited.
func (p *Process) Alive() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// ExitCode returns the child's exit code, or -1 while it runs.
func (p *Process) ExitCode() int {
	if p.Alive() {
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}
