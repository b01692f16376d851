package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"hnas-backup/src/backup/retention"
	"hnas-backup/src/backup/session"
	"hnas-backup/src/config"
	"hnas-backup/src/statestore"
)

func newPostCmd(stdout, stderr io.Writer) *cobra.Command {
	var result string
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Tear down shares and snapshots after a backup job",
		Long: "Reads the correlation state the pre hook wrote, deletes the CIFS shares,\n" +
			"deletes or retains each snapshot according to the job outcome and cleanup\n" +
			"policy, sweeps expired snapshots from earlier runs, and clears the state\n" +
			"file. Run this as the Veeam post-job script.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setupRuntime(cmd, "hnas_post_backup")
			if err != nil {
				return err
			}
			defer rt.closeLog()

			outcome := result
			if outcome == "" {
				outcome = config.JobResult()
			}
			succeeded := config.IsSuccessResult(outcome)
			if outcome == "" {
				rt.log.Warn("No backup job result available, assuming failure")
			}
			rt.log.WithField("result", outcome).WithField("succeeded", succeeded).Info("Finalizing backup run")

			store := statestore.New(rt.cfg.StateFile)
			sess, err := store.Load()
			if err != nil {
				return err
			}
			if sess == nil {
				rt.log.Warn("No snapshot state file found, nothing to clean up")
				fmt.Fprintln(stdout, "Nothing to finalize.")
				return nil
			}

			ctx := cmdContext(cmd)
			if err := rt.checkServer(ctx); err != nil {
				return err
			}

			opts := getSafetyOptions(cmd)
			coord := session.New(rt.client, rt.log)
			results := coord.FinalizePhase(ctx, session.FinalizeOptions{
				Succeeded:        succeeded,
				CleanupOnSuccess: rt.cfg.CleanupOnSuccess,
				CleanupOnFailure: rt.cfg.CleanupOnFailure,
				DryRun:           opts.DryRun,
			}, sess)

			var deletedSnaps, deletedShares, retained, failed int
			for _, res := range results {
				if res.Failed() {
					failed++
				}
				if res.SnapshotDeleted {
					deletedSnaps++
				}
				if res.ShareDeleted {
					deletedShares++
				}
				if res.Retained {
					retained++
				}
			}
			fmt.Fprintf(stdout, "Deleted %d snapshots and %d shares, retained %d snapshots (%d entries)\n",
				deletedSnaps, deletedShares, retained, len(results))

			sweepFailed := runSweep(cmd, stdout, rt, sess, opts.DryRun)
			if sweepFailed > 0 {
				rt.log.Warnf("Retention sweep left %d objects behind", sweepFailed)
			}

			if !opts.DryRun {
				if err := store.Clear(); err != nil {
					// A stale state file would make a re-run double-process
					// these entries.
					return errors.Wrap(err, "clearing snapshot state")
				}
				rt.log.WithField("path", store.Path()).Info("Cleared snapshot state")
			}

			if failed > 0 {
				return errors.Errorf("%d of %d entries failed cleanup", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "Backup job result (Success|Warning|Failed); read from VEEAM_JOB_RESULT when unset")
	return cmd
}

// runSweep ages out leftovers from earlier runs, excluding everything the
// just-finalized session touched. Sweep problems are reported but never
// fail the hook; the backup job itself has already concluded.
func runSweep(cmd *cobra.Command, stdout io.Writer, rt *runtime, sess *statestore.Session, dryRun bool) int {
	keepSnaps := map[string]bool{}
	keepShares := map[string]bool{}
	for _, entry := range sess.Entries {
		keepSnaps[entry.SnapshotObjectID] = true
		if entry.Share != nil {
			keepShares[entry.Share.ObjectID] = true
		}
	}

	sweeper := retention.NewSweeper(rt.client, rt.log)
	plan, errs := sweeper.Plan(cmdContext(cmd), retention.Options{
		Filesystems:   rt.cfg.Filesystems,
		AppSearchID:   rt.cfg.AppSearchID,
		SharePrefix:   rt.cfg.ShareName,
		RetentionDays: rt.cfg.RetentionDays,
		KeepSnapshots: keepSnaps,
		KeepShares:    keepShares,
	})
	for _, err := range errs {
		rt.log.WithError(err).Warn("Retention sweep scan problem")
	}
	if plan.Empty() {
		return 0
	}
	if dryRun {
		fmt.Fprintf(stdout, "Dry run: would sweep %d expired snapshots and %d shares\n",
			len(plan.Snapshots), len(plan.Shares))
		return 0
	}

	items := sweeper.Execute(cmdContext(cmd), plan)
	var swept, failed int
	for _, item := range items {
		if item.Err != nil {
			failed++
			continue
		}
		swept++
	}
	fmt.Fprintf(stdout, "Swept %d expired objects\n", swept)
	return failed
}
