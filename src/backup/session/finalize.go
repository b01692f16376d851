package session

import (
	"context"

	"github.com/pkg/errors"

	"hnas-backup/src/hnasapi"
	"hnas-backup/src/statestore"
)

// FinalizePhase tears down one recorded session after the backup job has
// concluded. Shares always come down first so no client can hold the
// snapshot path open while it is being deleted; the snapshot itself is
// deleted only when the outcome-specific cleanup policy says so. Every
// entry is attempted regardless of earlier failures.
func (c *Coordinator) FinalizePhase(ctx context.Context, opts FinalizeOptions, sess *statestore.Session) []FinalizeResult {
	results := make([]FinalizeResult, 0, len(sess.Entries))
	for _, entry := range sess.Entries {
		results = append(results, c.finalizeOne(ctx, opts, entry))
	}
	return results
}

func (c *Coordinator) finalizeOne(ctx context.Context, opts FinalizeOptions, entry statestore.Entry) FinalizeResult {
	log := c.Log.WithField("filesystem", entry.FilesystemName).WithField("snapshot", entry.SnapshotName)
	res := FinalizeResult{Entry: entry}

	if entry.Share != nil {
		shareLog := log.WithField("share", entry.Share.Name)
		switch {
		case opts.DryRun:
			shareLog.Info("Dry run: would delete CIFS share")
		default:
			err := c.Client.DeleteShare(ctx, entry.Share.ObjectID)
			var notFound *hnasapi.NotFoundError
			switch {
			case err == nil:
				res.ShareDeleted = true
				shareLog.Info("Deleted CIFS share")
			case errors.As(err, &notFound):
				res.ShareDeleted = true
				shareLog.Warn("CIFS share already gone")
			default:
				res.ShareErr = errors.Wrapf(err, "deleting share %q", entry.Share.Name)
				shareLog.WithError(err).Error("Failed to delete CIFS share")
			}
		}
	}

	if !opts.ShouldDelete() {
		res.Retained = true
		log.Info("Snapshot retained per cleanup policy")
		return res
	}

	if opts.DryRun {
		log.Info("Dry run: would delete snapshot")
		return res
	}

	err := c.Client.DeleteSnapshot(ctx, entry.SnapshotObjectID)
	var notFound *hnasapi.NotFoundError
	switch {
	case err == nil:
		res.SnapshotDeleted = true
		log.Info("Deleted snapshot")
	case errors.As(err, &notFound):
		res.SnapshotDeleted = true
		log.Warn("Snapshot already gone")
	default:
		res.SnapshotErr = errors.Wrapf(err, "deleting snapshot %q", entry.SnapshotName)
		log.WithError(err).Error("Failed to delete snapshot")
	}
	return res
}
