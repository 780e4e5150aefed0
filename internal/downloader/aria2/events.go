package aria2dl

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/kythours/modelvol/internal/aria2"
	"github.com/kythours/modelvol/internal/downloader"
)

const (
	statusActive   = "active"
	statusWaiting  = "waiting"
	statusComplete = "complete"
	statusError    = "error"
	statusRemoved  = "removed"
)

// status is a partial view of aria2.tellStatus. Numeric values are decimal
// strings.
type status struct {
	Status          string `json:"status"`
	TotalLength     string `json:"totalLength"`
	CompletedLength string `json:"completedLength"`
	DownloadSpeed   string `json:"downloadSpeed"`
	ErrorCode       string `json:"errorCode"`
	ErrorMessage    string `json:"errorMessage"`
}

func (s *status) progress() downloader.Progress {
	return downloader.Progress{
		Completed: parseInt(s.CompletedLength),
		Total:     parseInt(s.TotalLength),
		Speed:     parseInt(s.DownloadSpeed),
	}
}

var statusKeys = []string{"status", "totalLength", "completedLength", "downloadSpeed", "errorCode", "errorMessage"}

func (f *Fetcher) tellStatus(ctx context.Context, gid string) (*status, error) {
	res, err := f.cl.Call(ctx, "aria2.tellStatus", gid, statusKeys)
	if err != nil {
		return nil, err
	}
	var st status
	if err := json.Unmarshal(res, &st); err != nil {
		return nil, fmt.Errorf("parse tellStatus: %w", err)
	}
	return &st, nil
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Run subscribes to aria2 notifications and wakes the Fetch call waiting on
// the affected GID. It returns when ctx ends or the socket closes; Fetch
// keeps working by polling either way.
func (f *Fetcher) Run(ctx context.Context) {
	lg := f.log.With("operation_id", uuid.NewString())
	ch, err := f.cl.Notifications(ctx)
	if err != nil {
		lg.Warn("aria2 notifications unavailable, polling only", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				lg.Info("aria2 notification stream closed")
				return
			}
			f.handleNotification(n)
		}
	}
}

func (f *Fetcher) handleNotification(n aria2.Notification) {
	if !n.Terminal() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, gid := range n.GIDs() {
		if ch, ok := f.waiters[gid]; ok {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (f *Fetcher) watch(gid string) <-chan struct{} {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.waiters[gid] = ch
	f.mu.Unlock()
	return ch
}

func (f *Fetcher) unwatch(gid string) {
	f.mu.Lock()
	delete(f.waiters, gid)
	f.mu.Unlock()
}
