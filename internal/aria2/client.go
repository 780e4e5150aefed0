package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kythours/modelvol/internal/metrics"
)

const (
	DefaultRPCURL  = "http://127.0.0.1:6800/jsonrpc"
	DefaultTimeout = 3 * time.Second
)

// Config locates an aria2 daemon. TimeoutMS bounds each RPC round trip, not
// the transfers aria2 performs.
type Config struct {
	RPCURL    string
	Secret    string
	TimeoutMS int
}

type Client struct {
	baseURL *url.URL
	secret  string
	http    *http.Client
}

// NewClient builds a client from cfg. An unparsable URL or a non-positive
// timeout falls back to the defaults.
func NewClient(cfg Config) (*Client, error) {
	timeout := DefaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}

	rawURL := cfg.RPCURL
	if rawURL == "" {
		rawURL = DefaultRPCURL
	}
	baseURL, err := url.Parse(rawURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		baseURL, err = url.Parse(DefaultRPCURL)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		baseURL: baseURL,
		secret:  cfg.Secret,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) BaseURL() *url.URL  { return c.baseURL }
func (c *Client) Secret() string     { return c.secret }
func (c *Client) HTTP() *http.Client { return c.http }

type rpcReq struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      string `json:"id"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResp struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by aria2.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("aria2 rpc error %d: %s", e.Code, e.Message) }

// Call invokes method with params, prepending the secret token when one is
// configured, and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	timer := prometheus.NewTimer(metrics.Aria2RPCLatency.WithLabelValues(method))
	defer timer.ObserveDuration()

	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}
	body, err := json.Marshal(rpcReq{Jsonrpc: "2.0", Method: method, ID: "modelvol", Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(resp.Body)
	var rr rpcResp
	if err := json.Unmarshal(b, &rr); err != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("aria2 http %d: %s", resp.StatusCode, string(b))
		}
		return nil, fmt.Errorf("aria2 rpc decode: %w (%s)", err, string(b))
	}
	if rr.Error != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, rr.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("aria2 http %d: %s", resp.StatusCode, string(b))
	}
	return rr.Result, nil
}

// Ping checks the daemon answers aria2.getVersion.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, "aria2.getVersion")
	return err
}
