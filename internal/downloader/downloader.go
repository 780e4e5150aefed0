package downloader

import (
	"context"
	"errors"
)

// ErrNoContent is returned when a transfer finished without writing anything.
var ErrNoContent = errors.New("fetch produced no content")

// Request describes a single transfer. Token is already scoped: the caller
// only sets it when the URL host is trusted, so backends attach it verbatim.
type Request struct {
	URL   string
	Dest  string
	Token string
	// TaskID correlates progress events with a manifest entry.
	TaskID string
}

// PartSuffix names the in-flight file a backend may write next to Dest. A
// crashed run can leave one behind; the reconciler removes it before retrying.
const PartSuffix = ".part"

// Fetcher transfers a remote resource into a destination path. Implementations
// block until the transfer ends. On failure they may leave a partial file at
// Dest or Dest+PartSuffix; the reconciler owns cleanup.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) error
}

// Pinger is implemented by backends that depend on an external daemon.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend names accepted by configuration.
const (
	BackendHTTP  = "http"
	BackendAria2 = "aria2"
	BackendNone  = "none"
)
