package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"hnas-backup/src/backup/retention"
	"hnas-backup/src/safety"
)

func newSweepCmd(stdout, stderr io.Writer) *cobra.Command {
	var retentionDays int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete tagged snapshots and shares older than the retention window",
		Long: "Scans the configured filesystems (or all of them) for tagged snapshots\n" +
			"and derived CIFS shares past their retention age and deletes them. Use\n" +
			"this to recover from runs that crashed between the pre and post hooks.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setupRuntime(cmd, "hnas_sweep")
			if err != nil {
				return err
			}
			defer rt.closeLog()

			days := rt.cfg.RetentionDays
			if cmd.Flags().Changed("retention-days") {
				days = retentionDays
			}
			if days <= 0 {
				return errors.New("retention window is zero, set --retention-days or HNAS_RETENTION_DAYS")
			}

			ctx := cmdContext(cmd)
			if err := rt.checkServer(ctx); err != nil {
				return err
			}

			sweeper := retention.NewSweeper(rt.client, rt.log)
			plan, planErrs := sweeper.Plan(ctx, retention.Options{
				Filesystems:   rt.cfg.Filesystems,
				AppSearchID:   rt.cfg.AppSearchID,
				SharePrefix:   rt.cfg.ShareName,
				RetentionDays: days,
			})
			for _, err := range planErrs {
				rt.log.WithError(err).Warn("Sweep scan problem")
			}

			renderPlan(stdout, plan)
			opts := getSafetyOptions(cmd)
			if opts.DryRun || plan.Empty() {
				return nil
			}
			ok, err := safety.Confirm(opts, os.Stdin, stdout, fmt.Sprintf("Delete %d objects?", plan.Count()))
			if err != nil || !ok {
				return err
			}

			items := sweeper.Execute(ctx, plan)
			var deleted, failed int
			for _, item := range items {
				if item.Err != nil {
					failed++
					continue
				}
				deleted++
			}
			fmt.Fprintf(stdout, "Deleted %d objects\n", deleted)
			if failed > 0 {
				return errors.Errorf("failed to delete %d of %d objects", failed, len(items))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Age threshold in days (overrides HNAS_RETENTION_DAYS)")
	return cmd
}

func renderPlan(w io.Writer, plan retention.Plan) {
	if plan.Empty() {
		fmt.Fprintln(w, "Nothing to sweep.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Type", "Filesystem", "Name", "Created", "Action"})
	table.SetBorder(false)
	for _, cand := range plan.Snapshots {
		table.Append([]string{"snapshot", cand.Filesystem, cand.Name, cand.Created.Format(time.RFC3339), "delete"})
	}
	for _, cand := range plan.Shares {
		table.Append([]string{"share", cand.Filesystem, cand.Name, cand.Created.Format(time.RFC3339), "delete"})
	}
	table.Render()
}
