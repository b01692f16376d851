// Package session drives the snapshot lifecycle around one backup window:
// the create phase runs as the Veeam pre-job hook, the finalize phase as the
// post-job hook, with the correlation state file bridging the two processes.
package session

import (
	"time"

	"github.com/sirupsen/logrus"

	"hnas-backup/src/hnasapi"
	"hnas-backup/src/statestore"
)

// timestampLayout renders second-precision local timestamps embedded in
// snapshot and share names: veeam_FS1_20250102_030405.
const timestampLayout = "20060102_150405"

// Coordinator orchestrates snapshot and share operations for both hooks.
// Filesystems are processed strictly one at a time to bound load on the
// storage controller and keep failure attribution unambiguous.
type Coordinator struct {
	Client hnasapi.Client
	Log    logrus.FieldLogger

	// Now is the clock; tests pin it. Defaults to time.Now.
	Now func() time.Time
}

func New(client hnasapi.Client, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{Client: client, Log: log, Now: time.Now}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// CreateOptions configures the pre-hook phase.
type CreateOptions struct {
	// Filesystems are the configured references, processed in order.
	Filesystems []string
	// AppSearchID tags created snapshots for later bulk lookup.
	AppSearchID string
	// RetentionInterval in seconds is passed to the API; 0 means the API
	// applies no automatic expiry of its own.
	RetentionInterval int64
	// CreateShare exposes each snapshot through a CIFS share.
	CreateShare bool
	// ShareName is the base name shares are derived from.
	ShareName string
	// Host is recorded in the session document for diagnosis.
	Host string
	// DryRun resolves and plans but creates nothing.
	DryRun bool
}

// CreateResult reports the outcome for a single filesystem of the create
// phase. Exactly one of Entry or Err is set; ShareErr may accompany a
// successful Entry when the snapshot exists but its share could not be
// created.
type CreateResult struct {
	Ref      string
	Entry    *statestore.Entry
	Err      error
	ShareErr error
}

// Failed reports whether this filesystem counts against the exit status.
// A share the caller asked for and did not get is a failure even though
// the snapshot is kept.
func (r CreateResult) Failed() bool {
	return r.Err != nil || r.ShareErr != nil
}

// FinalizeOptions configures the post-hook phase.
type FinalizeOptions struct {
	// Succeeded is the external backup job's outcome.
	Succeeded bool
	// CleanupOnSuccess and CleanupOnFailure select snapshot deletion per
	// outcome; when neither applies the snapshot stays under the API's own
	// retention policy.
	CleanupOnSuccess bool
	CleanupOnFailure bool
	// DryRun logs the decisions without deleting anything.
	DryRun bool
}

// ShouldDelete applies the two independent cleanup policies to the outcome.
func (o FinalizeOptions) ShouldDelete() bool {
	return (o.Succeeded && o.CleanupOnSuccess) || (!o.Succeeded && o.CleanupOnFailure)
}

// FinalizeResult reports what happened to one correlation entry.
type FinalizeResult struct {
	Entry           statestore.Entry
	ShareDeleted    bool
	ShareErr        error
	SnapshotDeleted bool
	SnapshotErr     error
	// Retained is true when policy kept the snapshot.
	Retained bool
}

// Failed reports whether this entry's cleanup counts against the exit
// status.
func (r FinalizeResult) Failed() bool {
	return r.ShareErr != nil || r.SnapshotErr != nil
}
