package downloader

import (
	"context"
	"log/slog"
)

// noopFetcher never touches the network. Used for offline starts: every task
// whose file is missing resolves to Skipped.
type noopFetcher struct {
	log *slog.Logger
}

func NewNoopFetcher(log *slog.Logger) Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &noopFetcher{log: log}
}

func (f *noopFetcher) Fetch(ctx context.Context, req Request) error {
	f.log.Info("noop: fetch", "url", req.URL, "dest", req.Dest)
	return ErrNoContent
}
