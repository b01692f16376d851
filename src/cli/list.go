package cli

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"hnas-backup/src/hnasapi"
	"hnas-backup/src/resolve"
)

// listRow is one tagged snapshot as shown by the list command.
type listRow struct {
	Filesystem string    `json:"filesystem"`
	Snapshot   string    `json:"snapshot"`
	ObjectID   string    `json:"objectId"`
	Created    time.Time `json:"created,omitempty"`
}

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tagged snapshots on the configured filesystems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setupRuntime(cmd, "hnas_list")
			if err != nil {
				return err
			}
			defer rt.closeLog()

			ctx := cmdContext(cmd)
			if err := rt.checkServer(ctx); err != nil {
				return err
			}

			rows, err := collectRows(ctx, rt.client, rt.cfg.Filesystems, rt.cfg.AppSearchID)
			if err != nil {
				return err
			}

			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			case "table", "":
				renderRows(stdout, rows)
				return nil
			default:
				return errors.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

// collectRows gathers tagged snapshots across the given filesystem
// references, or across every filesystem when none are configured.
func collectRows(ctx context.Context, client hnasapi.Client, refs []string, appSearchID string) ([]listRow, error) {
	var filesystems []hnasapi.Filesystem
	if len(refs) == 0 {
		all, err := client.ListFilesystems(ctx)
		if err != nil {
			return nil, err
		}
		filesystems = all
	} else {
		for _, ref := range refs {
			fs, err := resolve.Filesystem(ctx, client, ref)
			if err != nil {
				return nil, err
			}
			filesystems = append(filesystems, fs)
		}
	}

	rows := []listRow{}
	for _, fs := range filesystems {
		snaps, err := client.ListSnapshots(ctx, fs.FilesystemID, appSearchID)
		if err != nil {
			return nil, err
		}
		for _, snap := range snaps {
			rows = append(rows, listRow{
				Filesystem: fs.Label,
				Snapshot:   snap.DisplayName,
				ObjectID:   snap.ObjectID,
				Created:    snap.CreationTime.Time(),
			})
		}
	}
	return rows, nil
}

func renderRows(w io.Writer, rows []listRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Filesystem", "Snapshot", "Created", "Object ID"})
	table.SetBorder(false)
	for _, row := range rows {
		created := ""
		if !row.Created.IsZero() {
			created = row.Created.Format(time.RFC3339)
		}
		table.Append([]string{row.Filesystem, row.Snapshot, created, row.ObjectID})
	}
	table.Render()
}
