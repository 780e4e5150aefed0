package reqid

import (
	"context"
	"log/slog"
)

// key types are unexported to avoid collisions in context values.
type (
	requestKey struct{}
	runKey     struct{}
)

// With returns a new context with the provided request ID attached.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestKey{}, id)
}

// From extracts the request ID from the context, if present.
func From(ctx context.Context) (string, bool) {
	return lookup(ctx, requestKey{})
}

// WithRun attaches the reconciliation run ID.
func WithRun(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runKey{}, id)
}

// RunFrom extracts the run ID from the context, if present.
func RunFrom(ctx context.Context) (string, bool) {
	return lookup(ctx, runKey{})
}

// Logger decorates l with whichever correlation IDs ctx carries.
func Logger(ctx context.Context, l *slog.Logger) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	if id, ok := RunFrom(ctx); ok {
		l = l.With("run_id", id)
	}
	if id, ok := From(ctx); ok {
		l = l.With("request_id", id)
	}
	return l
}

func lookup(ctx context.Context, k any) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if s, ok := ctx.Value(k).(string); ok && s != "" {
		return s, true
	}
	return "", false
}
