package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantURL     string
		wantSecret  string
		wantTimeout time.Duration
	}{
		{
			name:        "defaults",
			wantURL:     DefaultRPCURL,
			wantTimeout: 3 * time.Second,
		},
		{
			name:        "explicit values",
			cfg:         Config{RPCURL: "http://localhost:6801/jsonrpc", Secret: "abc123", TimeoutMS: 1500},
			wantURL:     "http://localhost:6801/jsonrpc",
			wantSecret:  "abc123",
			wantTimeout: 1500 * time.Millisecond,
		},
		{
			name:        "invalid url fallback",
			cfg:         Config{RPCURL: "::bad::url"},
			wantURL:     DefaultRPCURL,
			wantTimeout: 3 * time.Second,
		},
		{
			name:        "negative timeout",
			cfg:         Config{TimeoutMS: -25},
			wantURL:     DefaultRPCURL,
			wantTimeout: 3 * time.Second,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClient(tc.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := c.BaseURL().String(); got != tc.wantURL {
				t.Fatalf("url: got %q want %q", got, tc.wantURL)
			}
			if c.Secret() != tc.wantSecret {
				t.Fatalf("secret: got %q want %q", c.Secret(), tc.wantSecret)
			}
			if c.HTTP().Timeout != tc.wantTimeout {
				t.Fatalf("timeout: got %v want %v", c.HTTP().Timeout, tc.wantTimeout)
			}
		})
	}
}

func TestCallPrependsToken(t *testing.T) {
	c, _ := NewClient(Config{RPCURL: "http://example.com/jsonrpc", Secret: "s3"})
	c.HTTP().Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		var req rpcReq
		if err := json.Unmarshal(b, &req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "aria2.getVersion" {
			t.Fatalf("method = %s", req.Method)
		}
		if len(req.Params) != 1 || req.Params[0] != "token:s3" {
			t.Fatalf("params = %#v", req.Params)
		}
		rb, _ := json.Marshal(rpcResp{Jsonrpc: "2.0", ID: req.ID, Result: json.RawMessage(`{"version":"1.37.0"}`)})
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(rb)), Header: make(http.Header)}, nil
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestCallRPCError(t *testing.T) {
	c, _ := NewClient(Config{RPCURL: "http://example.com/jsonrpc"})
	c.HTTP().Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		rb, _ := json.Marshal(rpcResp{Jsonrpc: "2.0", ID: "modelvol", Error: &RPCError{Code: 1, Message: "Unauthorized"}})
		return &http.Response{StatusCode: 400, Body: io.NopCloser(bytes.NewReader(rb)), Header: make(http.Header)}, nil
	})
	_, err := c.Call(context.Background(), "aria2.addUri", []string{"http://x"})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Message != "Unauthorized" {
		t.Fatalf("expected RPCError, got %v", err)
	}
}

func TestNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte("not json"))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","method":"aria2.onDownloadComplete","params":[{"gid":"g1"}]}`+"\n"))
	}))
	defer srv.Close()

	c, err := NewClient(Config{RPCURL: srv.URL + "/jsonrpc"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := c.Notifications(ctx)
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	n, ok := <-ch
	if !ok {
		t.Fatalf("channel closed before notification")
	}
	if n.Method != OnDownloadComplete || len(n.Params) != 1 || n.Params[0].GID != "g1" || !n.Terminal() {
		t.Fatalf("unexpected notification: %#v", n)
	}
}

func TestNotifyURL(t *testing.T) {
	tests := []struct {
		in, want string
		err      bool
	}{
		{"http://127.0.0.1:6800/jsonrpc", "ws://127.0.0.1:6800/jsonrpc", false},
		{"https://aria.example.net/jsonrpc", "wss://aria.example.net/jsonrpc", false},
		{"ws://127.0.0.1:6800/jsonrpc", "ws://127.0.0.1:6800/jsonrpc", false},
		{"ftp://127.0.0.1/jsonrpc", "", true},
	}
	for _, tc := range tests {
		u, err := url.Parse(tc.in)
		if err != nil {
			t.Fatal(err)
		}
		got, err := notifyURL(u)
		if (err != nil) != tc.err || got != tc.want {
			t.Errorf("notifyURL(%s) = %q, %v", tc.in, got, err)
		}
	}
}

func TestNotificationGIDs(t *testing.T) {
	n := Notification{Method: OnDownloadStart, Params: []NotificationEvent{{GID: "a"}, {}, {GID: "b"}}}
	if got := n.GIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("GIDs = %v", got)
	}
	if n.Terminal() {
		t.Fatal("start notification reported terminal")
	}
}
