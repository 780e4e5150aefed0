package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/reqid"
)

func newScrubCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scrub",
		Short: "Delete truncated or corrupt weight files from the volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer s.close()

			n := s.rec.Scrub(s.ctx, s.cfg.Volume.Root, s.cfg.Volume.SizeFloorBytes, s.cfg.KnownMinimums())
			s.finish()
			fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("cleaned")+warnStyle.Render(fmt.Sprint(n)))
			return nil
		},
	}
}

func newReconcileCmd(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fetch every manifest entry missing from the volume",
		Long: `Reconcile walks the manifest in order. Entries already on disk are left
alone; the rest are fetched. A failed fetch leaves no file behind and never
stops the run. Only a destination directory that cannot be created is fatal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer s.close()

			results, err := s.rec.Reconcile(s.ctx, s.manifest, s.cfg.Fetch.Token)
			s.finish()
			tally := data.Tally{RunID: s.runID}
			for _, r := range results {
				tally.Add(r)
			}
			printTally(cmd, tally, results)
			return err
		},
	}
	addFetchFlags(cmd, o)
	return cmd
}

func newSyncCmd(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Prepare directories, scrub, then reconcile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer s.close()

			tally, results, err := syncVolume(s)
			printTally(cmd, tally, results)
			return err
		},
	}
	addFetchFlags(cmd, o)
	return cmd
}

// syncVolume runs the full startup pass and drains the ledger.
func syncVolume(s *session) (data.Tally, []data.TaskResult, error) {
	tally, results, err := s.rec.Sync(s.ctx, s.plan())
	s.finish()
	if err != nil {
		reqid.Logger(s.ctx, s.log.Logger).Error("volume sync failed", "err", err)
	}
	return tally, results, err
}

func printTally(cmd *cobra.Command, t data.Tally, results []data.TaskResult) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderTally(t))
	fmt.Fprint(out, renderResults(results))
}
