package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"hnas-backup/src/backup/session"
	"hnas-backup/src/statestore"
)

func newPreCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "pre",
		Short: "Create snapshots (and optional CIFS shares) before a backup job",
		Long: "Snapshots every configured filesystem, optionally exposes each snapshot\n" +
			"through a CIFS share, and records everything in the correlation state file\n" +
			"for the post hook. Run this as the Veeam pre-job script.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setupRuntime(cmd, "hnas_pre_backup")
			if err != nil {
				return err
			}
			defer rt.closeLog()
			if err := rt.cfg.RequireFilesystems(); err != nil {
				return err
			}

			ctx := cmdContext(cmd)
			if err := rt.checkServer(ctx); err != nil {
				return err
			}

			opts := getSafetyOptions(cmd)
			coord := session.New(rt.client, rt.log)
			sess, results := coord.CreatePhase(ctx, session.CreateOptions{
				Filesystems:       rt.cfg.Filesystems,
				AppSearchID:       rt.cfg.AppSearchID,
				RetentionInterval: rt.cfg.RetentionInterval,
				CreateShare:       rt.cfg.CreateShare,
				ShareName:         rt.cfg.ShareName,
				Host:              rt.cfg.Host,
				DryRun:            opts.DryRun,
			})

			total := len(results)
			failed := 0
			for i, res := range results {
				switch {
				case res.Err != nil:
					failed++
					fmt.Fprintf(stdout, "[%d/%d] %s: failed: %v\n", i+1, total, res.Ref, res.Err)
				case res.Entry == nil:
					fmt.Fprintf(stdout, "[%d/%d] %s: dry run, nothing created\n", i+1, total, res.Ref)
				case res.ShareErr != nil:
					failed++
					fmt.Fprintf(stdout, "[%d/%d] %s: snapshot %s created, share failed: %v\n",
						i+1, total, res.Ref, res.Entry.SnapshotName, res.ShareErr)
				case res.Entry.Share != nil:
					fmt.Fprintf(stdout, "[%d/%d] %s: snapshot %s, share %s\n",
						i+1, total, res.Ref, res.Entry.SnapshotName, res.Entry.Share.Name)
				default:
					fmt.Fprintf(stdout, "[%d/%d] %s: snapshot %s\n", i+1, total, res.Ref, res.Entry.SnapshotName)
				}
			}

			if !opts.DryRun {
				store := statestore.New(rt.cfg.StateFile)
				if err := store.Save(sess); err != nil {
					// Snapshots already exist on the array but the post
					// hook will not know about them.
					rt.log.WithError(err).Error("Failed to persist snapshot state, created snapshots will not be cleaned up automatically")
					return err
				}
				rt.log.WithField("path", store.Path()).Info("Wrote snapshot state")
			}

			if failed > 0 {
				return errors.Errorf("%d of %d filesystems failed", failed, total)
			}
			return nil
		},
	}
}
