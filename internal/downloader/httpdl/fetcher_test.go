package httpdl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/downloader"
	"github.com/kythours/modelvol/internal/reqid"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func resp(code int, body io.Reader, size int64) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(body), ContentLength: size, Header: make(http.Header)}
}

func newTestFetcher(rt http.RoundTripper, rep downloader.Reporter) *Fetcher {
	return New(Options{
		Client:   &http.Client{Transport: rt},
		Reporter: rep,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestFetchWritesFileAndSendsToken(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ae.safetensors")
	payload := bytes.Repeat([]byte{7}, 4096)
	var gotAuth, gotUA string
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		return resp(http.StatusOK, bytes.NewReader(payload), int64(len(payload))), nil
	})
	f := newTestFetcher(rt, nil)
	f.ua = "modelvol/test"

	err := f.Fetch(context.Background(), downloader.Request{URL: "https://huggingface.co/a/resolve/main/ae.safetensors", Dest: dest, Token: "hf_abc"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotAuth != "Bearer hf_abc" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotUA != "modelvol/test" {
		t.Fatalf("user agent = %q", gotUA)
	}
	b, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(b, payload) {
		t.Fatalf("dest content mismatch: %v", err)
	}
	if _, err := os.Stat(dest + partSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("part file left behind: %v", err)
	}
}

func TestFetchWithoutTokenSendsNoAuthorization(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "x.pth")
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Fatalf("unexpected authorization header")
		}
		return resp(http.StatusOK, strings.NewReader("data"), 4), nil
	})
	if err := newTestFetcher(rt, nil).Fetch(context.Background(), downloader.Request{URL: "https://example.org/x.pth", Dest: dest}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestFetchRedirectToForeignHostDropsToken(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "big.safetensors")
	var mu sync.Mutex
	seen := map[string]string{}
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		seen[r.URL.Host] = r.Header.Get("Authorization")
		mu.Unlock()
		if r.URL.Host == "huggingface.co" {
			rr := resp(http.StatusFound, http.NoBody, 0)
			rr.Header.Set("Location", "https://cdn-lfs.example.net/blob/big")
			return rr, nil
		}
		return resp(http.StatusOK, strings.NewReader("payload"), 7), nil
	})
	err := newTestFetcher(rt, nil).Fetch(context.Background(), downloader.Request{URL: "https://huggingface.co/r/resolve/main/big.safetensors", Dest: dest, Token: "secret"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if seen["huggingface.co"] != "Bearer secret" {
		t.Fatalf("origin should get the token, got %q", seen["huggingface.co"])
	}
	if got, ok := seen["cdn-lfs.example.net"]; !ok || got != "" {
		t.Fatalf("redirect target saw authorization %q (visited=%v)", got, ok)
	}
}

func TestFetchHTTPErrorLeavesNothing(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing.safetensors")
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return resp(http.StatusNotFound, strings.NewReader("<html>Entry not found</html>"), 28), nil
	})
	err := newTestFetcher(rt, nil).Fetch(context.Background(), downloader.Request{URL: "https://huggingface.co/nope", Dest: dest})
	if !errors.Is(err, data.ErrTransferFailure) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dest should not exist: %v", err)
	}
}

type failingReader struct {
	n   int
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, f.err
	}
	if len(p) > f.n {
		p = p[:f.n]
	}
	for i := range p {
		p[i] = 1
	}
	f.n -= len(p)
	return len(p), nil
}

func TestFetchTruncatedBodyRemovesPart(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "cut.gguf")
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return resp(http.StatusOK, &failingReader{n: 1000, err: io.ErrUnexpectedEOF}, 5000), nil
	})
	err := newTestFetcher(rt, nil).Fetch(context.Background(), downloader.Request{URL: "https://h/cut.gguf", Dest: dest})
	if !errors.Is(err, data.ErrTransferFailure) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	for _, p := range []string{dest, dest + partSuffix} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s should not exist: %v", p, err)
		}
	}
}

func TestFetchEmptyBody(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty.pt")
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return resp(http.StatusOK, http.NoBody, 0), nil
	})
	err := newTestFetcher(rt, nil).Fetch(context.Background(), downloader.Request{URL: "https://h/empty.pt", Dest: dest})
	if !errors.Is(err, downloader.ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestFetchEmitsProgress(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "p.pt")
	var events []downloader.Event
	rep := downloader.ReporterFunc(func(e downloader.Event) { events = append(events, e) })
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return resp(http.StatusOK, bytes.NewReader(make([]byte, 1<<16)), 1<<16), nil
	})
	f := newTestFetcher(rt, rep)
	// Every call to now advances a second so each write crosses the interval.
	clock := time.Unix(0, 0)
	f.now = func() time.Time { clock = clock.Add(time.Second); return clock }
	f.every = time.Millisecond

	ctx := reqid.WithRun(context.Background(), "run-7")
	if err := f.Fetch(ctx, downloader.Request{URL: "https://h/p.pt", Dest: dest, TaskID: "t1"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected progress events")
	}
	last := events[len(events)-1]
	if last.Type != downloader.EventProgress || last.TaskID != "t1" || last.RunID != "run-7" || last.Progress == nil {
		t.Fatalf("unexpected event: %#v", last)
	}
	if last.Progress.Completed != 1<<16 || last.Progress.Total != 1<<16 {
		t.Fatalf("unexpected progress: %#v", last.Progress)
	}
}
