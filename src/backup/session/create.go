package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"hnas-backup/src/hnasapi"
	"hnas-backup/src/resolve"
	"hnas-backup/src/statestore"
)

// CreatePhase snapshots every configured filesystem and returns the session
// to persist alongside the per-filesystem results. One filesystem failing
// never stops the others: Veeam can still back up a partial snapshot set.
// The returned session holds an entry per snapshot that actually exists on
// the array, so it must be persisted even when some results carry errors.
func (c *Coordinator) CreatePhase(ctx context.Context, opts CreateOptions) (*statestore.Session, []CreateResult) {
	start := c.now()
	sess := &statestore.Session{
		RunID:       uuid.NewString(),
		Timestamp:   start.Format(timestampLayout),
		Host:        opts.Host,
		AppSearchID: opts.AppSearchID,
	}

	results := make([]CreateResult, 0, len(opts.Filesystems))
	for _, ref := range opts.Filesystems {
		res := c.createOne(ctx, opts, sess.Timestamp, ref)
		if res.Entry != nil {
			sess.Entries = append(sess.Entries, *res.Entry)
		}
		results = append(results, res)
	}
	return sess, results
}

func (c *Coordinator) createOne(ctx context.Context, opts CreateOptions, stamp, ref string) CreateResult {
	log := c.Log.WithField("filesystem", ref)

	fs, err := resolve.Filesystem(ctx, c.Client, ref)
	if err != nil {
		log.WithError(err).Error("Failed to resolve filesystem")
		return CreateResult{Ref: ref, Err: err}
	}

	name := fmt.Sprintf("%s_%s_%s", opts.AppSearchID, fs.Label, stamp)
	log = log.WithField("snapshot", name)

	if opts.DryRun {
		log.Info("Dry run: would create snapshot")
		if opts.CreateShare {
			log.WithField("share", opts.ShareName+"_"+stamp).Info("Dry run: would create CIFS share")
		}
		return CreateResult{Ref: ref}
	}

	snap, err := c.Client.CreateSnapshot(ctx, hnasapi.SnapshotSpec{
		FilesystemID:      fs.FilesystemID,
		DisplayName:       name,
		AppSearchID:       opts.AppSearchID,
		RetentionInterval: opts.RetentionInterval,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create snapshot")
		return CreateResult{Ref: ref, Err: errors.Wrapf(err, "creating snapshot for %q", ref)}
	}

	createdAt := snap.CreationTime.Time()
	if createdAt.IsZero() {
		createdAt = c.now()
	}
	entry := &statestore.Entry{
		FilesystemRef:    ref,
		FilesystemID:     fs.FilesystemID,
		FilesystemName:   fs.Label,
		VirtualServerID:  fs.VirtualServerID,
		SnapshotObjectID: snap.ObjectID,
		SnapshotName:     name,
		CreatedAt:        createdAt,
		RetentionSeconds: opts.RetentionInterval,
	}
	log.WithField("objectId", snap.ObjectID).Info("Created snapshot")

	if !opts.CreateShare {
		return CreateResult{Ref: ref, Entry: entry}
	}

	share, err := c.createShare(ctx, opts.ShareName, fs, name)
	if err != nil {
		// The snapshot stays: a share is a convenience for SMB-based
		// backup, the data itself is already frozen.
		log.WithError(err).Error("Failed to create CIFS share, snapshot kept")
		return CreateResult{Ref: ref, Entry: entry, ShareErr: err}
	}
	entry.Share = &statestore.ShareInfo{
		ObjectID: share.ObjectID,
		Name:     share.Name,
		Path:     share.Path,
	}
	log.WithField("share", share.Name).Info("Created CIFS share")
	return CreateResult{Ref: ref, Entry: entry}
}

// createShare exposes the named snapshot over CIFS. The share name gets its
// own clock read so that two shares created in the same run cannot collide
// even when the run timestamp is reused across filesystems.
func (c *Coordinator) createShare(ctx context.Context, base string, fs hnasapi.Filesystem, snapshotName string) (hnasapi.Share, error) {
	if fs.VirtualServerID == "" {
		return hnasapi.Share{}, errors.Errorf("filesystem %q reports no virtual server, cannot place share", fs.Label)
	}
	now := c.now()
	spec := hnasapi.ShareSpec{
		FilesystemID:    fs.FilesystemID,
		VirtualServerID: fs.VirtualServerID,
		Name:            fmt.Sprintf("%s_%s", base, now.Format(timestampLayout)),
		Path:            `\.snapshot\` + snapshotName,
		Comment:         "Veeam backup snapshot share created at " + now.Format("2006-01-02T15:04:05"),
	}
	return c.Client.CreateShare(ctx, spec)
}
