package reconciler

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/downloader"
	"github.com/kythours/modelvol/internal/metrics"
	"github.com/kythours/modelvol/internal/reqid"
	"github.com/kythours/modelvol/internal/safetensors"
)

// Deletion reasons, also used as metric labels.
const (
	ReasonBelowKnownMinimum = "below_known_minimum"
	ReasonBelowFloor        = "below_floor"
	ReasonBadHeader         = "bad_header"
)

// Scrub walks root and deletes weight files that fail validation, returning
// how many were removed. A file with a known minimum is held to it; any
// other file must reach floor; safetensors files must also have a readable
// header. Unreadable entries and failed removals are logged and skipped.
func (r *Reconciler) Scrub(ctx context.Context, root string, floor int64, known data.KnownMinimums) int {
	log := reqid.Logger(ctx, r.log).With("root", root)
	runID, _ := reqid.RunFrom(ctx)
	deleted := 0

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil {
			if p == root {
				return err
			}
			log.Warn("scrub walk", "path", p, "err", err)
			return nil
		}
		if d.IsDir() || data.FormatOf(d.Name()) == data.FormatOther {
			return nil
		}
		// Stat follows symlinks: a linked weight file is judged by its
		// target and removing it drops the link.
		info, err := r.fs.Stat(p)
		if err != nil {
			log.Warn("scrub stat", "path", p, "err", err)
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f := data.ManagedFile{Path: p, Size: info.Size(), MinimumSize: known.Lookup(d.Name()), Format: data.FormatOf(d.Name())}
		reason, cause := check(f, floor)
		if reason == "" {
			return nil
		}
		if !r.remove(log, p) {
			return nil
		}
		deleted++
		metrics.ScrubDeletions.WithLabelValues(reason).Inc()
		log.Info("deleted", "name", f.Name(), "size_mb", toMB(f.Size), "reason", reason, "err", cause)
		r.rep.Report(downloader.Event{RunID: runID, Path: p, Type: downloader.EventScrubbed, Size: f.Size, Err: cause.Error(), At: r.now()})
		return nil
	})
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info("volume root missing, nothing to scrub")
	case err != nil:
		log.Warn("scrub aborted", "err", err)
	}
	log.Info("scrub finished", "deleted", deleted)
	return deleted
}

// check returns a deletion reason and cause for f, or "" when f passes.
func check(f data.ManagedFile, floor int64) (string, error) {
	if f.MinimumSize > 0 && f.Size < f.MinimumSize {
		return ReasonBelowKnownMinimum, data.ErrCorruptAsset
	}
	if f.Size < floor {
		return ReasonBelowFloor, data.ErrCorruptAsset
	}
	if f.Format == data.FormatSafetensors {
		if _, err := safetensors.ReadFile(f.Path); err != nil {
			return ReasonBadHeader, errors.Join(data.ErrHeaderParse, err)
		}
	}
	return "", nil
}
