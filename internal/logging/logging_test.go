package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kythours/modelvol/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"trace":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.Log{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hidden")
	l.Info("already present", "file", "ae.safetensors")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "already present" || rec["file"] != "ae.safetensors" {
		t.Fatalf("record = %v", rec)
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New(config.Log{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFileTee(t *testing.T) {
	for _, format := range []string{"text", "pretty"} {
		t.Run(format, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "modelvol.log")
			var buf bytes.Buffer
			l, err := New(config.Log{Level: "debug", Format: format, File: p, MaxSizeMB: 1}, &buf)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			l.With("run_id", "r1").Info("scrub complete", "deleted", 2)
			if err := l.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			b, err := os.ReadFile(p)
			if err != nil {
				t.Fatalf("read log file: %v", err)
			}
			if !strings.Contains(string(b), "scrub complete") || !strings.Contains(string(b), "run_id=r1") {
				t.Fatalf("file content = %q", b)
			}
			if !strings.Contains(buf.String(), "scrub complete") {
				t.Fatalf("console content = %q", buf.String())
			}
		})
	}
}
