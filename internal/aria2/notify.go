package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"nhooyr.io/websocket"
)

// Notification methods pushed by aria2 over the websocket.
const (
	OnDownloadStart    = "aria2.onDownloadStart"
	OnDownloadComplete = "aria2.onDownloadComplete"
	OnDownloadError    = "aria2.onDownloadError"
	OnDownloadStop     = "aria2.onDownloadStop"
)

// notifyReadLimit bounds one websocket frame; notifications are tiny.
const notifyReadLimit = 64 << 10

// Notification is one JSON-RPC notification from the daemon.
type Notification struct {
	Method string              `json:"method"`
	Params []NotificationEvent `json:"params"`
}

// NotificationEvent names the transfer a notification is about.
type NotificationEvent struct {
	GID string `json:"gid"`
}

// Terminal reports whether the notification ends a download.
func (n Notification) Terminal() bool {
	switch n.Method {
	case OnDownloadComplete, OnDownloadError, OnDownloadStop:
		return true
	}
	return false
}

// GIDs lists the transfers the notification refers to.
func (n Notification) GIDs() []string {
	out := make([]string, 0, len(n.Params))
	for _, p := range n.Params {
		if p.GID != "" {
			out = append(out, p.GID)
		}
	}
	return out
}

// notifyURL maps the RPC endpoint to its websocket twin on the same path.
func notifyURL(rpc *url.URL) (string, error) {
	u := *rpc
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	return u.String(), nil
}

// Notifications subscribes to the daemon's websocket. The channel closes
// when the connection drops or ctx ends; frames that are not notifications
// (RPC responses, garbage) are skipped.
func (c *Client) Notifications(ctx context.Context) (<-chan Notification, error) {
	target, err := notifyURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	conn.SetReadLimit(notifyReadLimit)

	ch := make(chan Notification, 8)
	go func() {
		defer close(ch)
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()
		for {
			_, frame, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var n Notification
			if json.Unmarshal(bytes.TrimSpace(frame), &n) != nil || n.Method == "" {
				continue
			}
			select {
			case ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
