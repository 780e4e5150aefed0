package data

import (
	"path/filepath"
	"strings"
)

// MiB is one mebibyte.
const MiB int64 = 1024 * 1024

// FileFormat classifies weight files by how deeply they can be validated.
type FileFormat int

const (
	// FormatOther is anything the scrubber does not manage.
	FormatOther FileFormat = iota
	// FormatBinary is an opaque weight blob; only size checks apply.
	FormatBinary
	// FormatSafetensors carries a parseable header before the tensor data.
	FormatSafetensors
)

var weightExtensions = map[string]FileFormat{
	".safetensors": FormatSafetensors,
	".pt":          FormatBinary,
	".pth":         FormatBinary,
	".ckpt":        FormatBinary,
	".gguf":        FormatBinary,
}

// FormatOf returns the format class for a file name. Matching is by suffix
// and case sensitive.
func FormatOf(name string) FileFormat {
	for ext, f := range weightExtensions {
		if strings.HasSuffix(name, ext) {
			return f
		}
	}
	return FormatOther
}

// ManagedFile is a weight file under the scrubber's authority.
type ManagedFile struct {
	Path        string
	Size        int64
	MinimumSize int64
	Format      FileFormat
}

// Name is the base file name, the key used for known minimums.
func (f ManagedFile) Name() string { return filepath.Base(f.Path) }

// KnownMinimums maps an exact file name to its minimum acceptable byte size.
type KnownMinimums map[string]int64

// FromMB converts a filename→megabytes map into KnownMinimums.
func FromMB(mb map[string]int64) KnownMinimums {
	out := make(KnownMinimums, len(mb))
	for name, v := range mb {
		out[name] = v * MiB
	}
	return out
}

// Lookup returns the minimum for name; zero means none.
func (k KnownMinimums) Lookup(name string) int64 {
	if k == nil {
		return 0
	}
	return k[name]
}
