package reconciler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/metrics"
)

func TestScrub(t *testing.T) {
	root := t.TempDir()
	files := map[string]int64{
		"text_encoders/qwen_3_4b.safetensors": 0, // written as a valid but undersized safetensors below
		"checkpoints/model.ckpt":              2 * data.MiB,
		"loras/small.pt":                      512,
		"loras/FERPHOTO/tiny.pth":             100,
		"vae/notes.txt":                       10,
		"vae/upper.SAFETENSORS":               10,
		"diffusion_models/q.gguf":             3 * data.MiB,
		"controlnet/broken.safetensors":       2 * data.MiB,
	}
	for name, n := range files {
		if n > 0 {
			writeSize(t, filepath.Join(root, name), n)
		}
	}
	writeSize(t, filepath.Join(root, "text_encoders", "placeholder"), 1)
	writeSafetensors(t, filepath.Join(root, "text_encoders", "qwen_3_4b.safetensors"), int(2*data.MiB))
	writeSafetensors(t, filepath.Join(root, "vae", "ae.safetensors"), int(2*data.MiB))

	known := data.FromMB(map[string]int64{"qwen_3_4b.safetensors": 6000, "q.gguf": 1})
	r := New(quiet, nil, Options{})

	before := testutil.ToFloat64(metrics.ScrubDeletions.WithLabelValues(ReasonBelowKnownMinimum))
	n := r.Scrub(context.Background(), root, data.MiB, known)
	if n != 4 {
		t.Fatalf("deleted = %d, want 4", n)
	}
	if got := testutil.ToFloat64(metrics.ScrubDeletions.WithLabelValues(ReasonBelowKnownMinimum)) - before; got != 1 {
		t.Fatalf("below_known_minimum delta = %v", got)
	}

	gone := []string{"text_encoders/qwen_3_4b.safetensors", "loras/small.pt", "loras/FERPHOTO/tiny.pth", "controlnet/broken.safetensors"}
	kept := []string{"checkpoints/model.ckpt", "vae/notes.txt", "vae/upper.SAFETENSORS", "diffusion_models/q.gguf", "vae/ae.safetensors", "text_encoders/placeholder"}
	for _, p := range gone {
		if exists(filepath.Join(root, p)) {
			t.Errorf("%s should be deleted", p)
		}
	}
	for _, p := range kept {
		if !exists(filepath.Join(root, p)) {
			t.Errorf("%s should be kept", p)
		}
	}

	if again := r.Scrub(context.Background(), root, data.MiB, known); again != 0 {
		t.Fatalf("second scrub deleted %d files", again)
	}
}

func TestScrubFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	store := t.TempDir()
	small := filepath.Join(store, "small.bin")
	big := filepath.Join(store, "big.bin")
	writeSize(t, small, 16)
	writeSize(t, big, 2*data.MiB)
	if err := os.MkdirAll(filepath.Join(root, "loras"), 0o755); err != nil {
		t.Fatal(err)
	}
	links := map[string]string{
		"loras/x.safetensors": small,
		"loras/ok.pt":         big,
		"loras/dangling.pt":   filepath.Join(store, "missing.bin"),
		"loras/dir.ckpt":      store,
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(root, name)); err != nil {
			t.Skipf("symlinks unsupported: %v", err)
		}
	}

	n := New(quiet, nil, Options{}).Scrub(context.Background(), root, data.MiB, nil)
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	if _, err := os.Lstat(filepath.Join(root, "loras/x.safetensors")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("undersized link should be removed: %v", err)
	}
	if !exists(small) {
		t.Fatalf("link target should be left alone")
	}
	for _, name := range []string{"loras/ok.pt", "loras/dangling.pt", "loras/dir.ckpt"} {
		if _, err := os.Lstat(filepath.Join(root, name)); err != nil {
			t.Errorf("%s should be kept: %v", name, err)
		}
	}
}

func TestScrubMissingRoot(t *testing.T) {
	r := New(quiet, nil, Options{})
	if n := r.Scrub(context.Background(), filepath.Join(t.TempDir(), "nope"), data.MiB, nil); n != 0 {
		t.Fatalf("deleted = %d", n)
	}
}

func TestCheckOrder(t *testing.T) {
	tests := []struct {
		name string
		f    data.ManagedFile
		want string
	}{
		{"known minimum wins over floor", data.ManagedFile{Size: 10, MinimumSize: 100 * data.MiB, Format: data.FormatBinary}, ReasonBelowKnownMinimum},
		{"above known minimum but below floor", data.ManagedFile{Size: 10, MinimumSize: 5, Format: data.FormatBinary}, ReasonBelowFloor},
		{"binary above floor", data.ManagedFile{Size: 2 * data.MiB, Format: data.FormatBinary}, ""},
		{"exactly at floor passes", data.ManagedFile{Size: data.MiB, Format: data.FormatBinary}, ""},
		{"unreadable safetensors", data.ManagedFile{Path: "/does/not/exist.safetensors", Size: 2 * data.MiB, Format: data.FormatSafetensors}, ReasonBadHeader},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, cause := check(tc.f, data.MiB)
			if got != tc.want {
				t.Fatalf("reason = %q, want %q", got, tc.want)
			}
			if (got == "") != (cause == nil) {
				t.Fatalf("cause = %v for reason %q", cause, got)
			}
		})
	}
}
