package data

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidSource   = errors.New("url is required")
	ErrTargetPath      = errors.New("path must be absolute")
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrBadState        = errors.New("unknown task state")

	// ErrCorruptAsset marks a weight file that failed a size check.
	ErrCorruptAsset = errors.New("corrupt asset")
	// ErrHeaderParse marks a structured weight file whose header is unreadable.
	ErrHeaderParse = errors.New("header parse failure")
	// ErrTransferFailure marks a fetch that did not produce a usable file.
	ErrTransferFailure = errors.New("transfer failure")
)

// ManifestError points at the offending manifest entry.
type ManifestError struct {
	Index int
	Err   error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest entry %d: %v", e.Index, e.Err)
}

func (e *ManifestError) Unwrap() []error { return []error{ErrInvalidManifest, e.Err} }
