package reconciler

import (
	"context"

	"github.com/google/uuid"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/reqid"
)

// Plan is everything one startup pass needs.
type Plan struct {
	Root       string
	Dirs       []string
	SizeFloor  int64
	Known      data.KnownMinimums
	Manifest   data.Manifest
	Credential string
}

// Sync prepares directories, scrubs the volume and reconciles the manifest
// under a fresh run ID, returning the tally and per-task results.
func (r *Reconciler) Sync(ctx context.Context, p Plan) (data.Tally, []data.TaskResult, error) {
	runID, ok := reqid.RunFrom(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = reqid.WithRun(ctx, runID)
	}
	tally := data.Tally{RunID: runID}
	log := reqid.Logger(ctx, r.log)

	if err := r.Prepare(p.Dirs); err != nil {
		return tally, nil, err
	}
	tally.Cleaned = r.Scrub(ctx, p.Root, p.SizeFloor, p.Known)

	results, err := r.Reconcile(ctx, p.Manifest, p.Credential)
	for _, res := range results {
		tally.Add(res)
	}
	if err != nil {
		return tally, results, err
	}
	log.Info("reconcile finished",
		"cleaned", tally.Cleaned,
		"present", tally.Present,
		"downloaded", tally.Downloaded,
		"skipped", tally.Skipped,
	)
	return tally, results, nil
}
