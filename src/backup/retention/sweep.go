// Package retention ages out snapshots and CIFS shares left behind by
// earlier runs. The sweep is planned first and executed separately so
// callers can preview or confirm the deletions.
package retention

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hnas-backup/src/hnasapi"
	"hnas-backup/src/resolve"
)

const timestampLayout = "20060102_150405"

// Candidate is one object the sweep wants to delete.
type Candidate struct {
	// Filesystem is the filesystem label for snapshots and the virtual
	// server id for shares.
	Filesystem string
	Name       string
	ObjectID   string
	Created    time.Time
}

// Plan lists everything a sweep would delete, snapshots and shares kept
// separate because they are deleted through different endpoints.
type Plan struct {
	Snapshots []Candidate
	Shares    []Candidate
}

func (p Plan) Empty() bool {
	return len(p.Snapshots) == 0 && len(p.Shares) == 0
}

func (p Plan) Count() int {
	return len(p.Snapshots) + len(p.Shares)
}

// Options scopes a sweep.
type Options struct {
	// Filesystems are the references whose snapshots are inspected.
	// Empty means every filesystem the server reports.
	Filesystems []string
	// AppSearchID restricts the listing to snapshots this tool tagged.
	AppSearchID string
	// SharePrefix is the base share name; shares named
	// prefix_YYYYMMDD_HHMMSS are sweep candidates. Empty disables the
	// share sweep.
	SharePrefix string
	// RetentionDays is the age threshold. Zero or negative disables the
	// sweep entirely.
	RetentionDays int
	// KeepSnapshots and KeepShares hold object ids that are never
	// candidates, whatever their timestamps claim. The finalize phase
	// passes the current run's objects here.
	KeepSnapshots map[string]bool
	KeepShares    map[string]bool
}

// Item is the execution outcome for one candidate.
type Item struct {
	Candidate
	// Kind is "snapshot" or "share".
	Kind    string
	Deleted bool
	Err     error
}

// Sweeper finds and deletes expired snapshots and shares.
type Sweeper struct {
	Client hnasapi.Client
	Log    logrus.FieldLogger

	// Now is the clock; tests pin it. Defaults to time.Now.
	Now func() time.Time
}

func NewSweeper(client hnasapi.Client, log logrus.FieldLogger) *Sweeper {
	return &Sweeper{Client: client, Log: log, Now: time.Now}
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Plan resolves the configured filesystems and collects every snapshot and
// share older than the retention window. Listing failures are collected per
// filesystem and never stop the rest of the scan.
func (s *Sweeper) Plan(ctx context.Context, opts Options) (Plan, []error) {
	var plan Plan
	if opts.RetentionDays <= 0 {
		s.Log.Debug("Retention sweep disabled, retention days is zero")
		return plan, nil
	}
	cutoff := s.now().AddDate(0, 0, -opts.RetentionDays)
	s.Log.WithField("cutoff", cutoff.Format(time.RFC3339)).Debug("Scanning for expired snapshots")

	filesystems, errs := s.targets(ctx, opts.Filesystems)
	var virtualServers []string
	seenVS := map[string]bool{}
	for _, fs := range filesystems {
		if fs.VirtualServerID != "" && !seenVS[fs.VirtualServerID] {
			seenVS[fs.VirtualServerID] = true
			virtualServers = append(virtualServers, fs.VirtualServerID)
		}

		snaps, err := s.Client.ListSnapshots(ctx, fs.FilesystemID, opts.AppSearchID)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "listing snapshots of %q", fs.Label))
			continue
		}
		for _, snap := range snaps {
			if opts.KeepSnapshots[snap.ObjectID] {
				continue
			}
			created := snap.CreationTime.Time()
			if created.IsZero() {
				s.Log.WithField("snapshot", snap.DisplayName).Warn("Snapshot reports no creation time, skipping")
				continue
			}
			if !created.Before(cutoff) {
				continue
			}
			plan.Snapshots = append(plan.Snapshots, Candidate{
				Filesystem: fs.Label,
				Name:       snap.DisplayName,
				ObjectID:   snap.ObjectID,
				Created:    created,
			})
		}
	}

	if opts.SharePrefix == "" {
		return plan, errs
	}
	prefix := opts.SharePrefix + "_"
	for _, vsID := range virtualServers {
		shares, err := s.Client.ListShares(ctx, vsID)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "listing shares of virtual server %s", vsID))
			continue
		}
		for _, share := range shares {
			if !strings.HasPrefix(share.Name, prefix) {
				continue
			}
			stamp, err := time.ParseInLocation(timestampLayout, strings.TrimPrefix(share.Name, prefix), time.Local)
			if err != nil {
				// Some other share that merely starts with our prefix.
				continue
			}
			if opts.KeepShares[share.ObjectID] || !stamp.Before(cutoff) {
				continue
			}
			plan.Shares = append(plan.Shares, Candidate{
				Filesystem: vsID,
				Name:       share.Name,
				ObjectID:   share.ObjectID,
				Created:    stamp,
			})
		}
	}
	return plan, errs
}

// targets resolves the configured references, or lists every filesystem
// when none are configured.
func (s *Sweeper) targets(ctx context.Context, refs []string) ([]hnasapi.Filesystem, []error) {
	if len(refs) == 0 {
		filesystems, err := s.Client.ListFilesystems(ctx)
		if err != nil {
			return nil, []error{errors.Wrap(err, "listing filesystems")}
		}
		return filesystems, nil
	}
	var out []hnasapi.Filesystem
	var errs []error
	for _, ref := range refs {
		fs, err := resolve.Filesystem(ctx, s.Client, ref)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "resolving filesystem %q", ref))
			continue
		}
		out = append(out, fs)
	}
	return out, errs
}

// Execute deletes everything in the plan, snapshots before shares, and
// reports per item. An object that is already gone counts as deleted.
func (s *Sweeper) Execute(ctx context.Context, plan Plan) []Item {
	items := make([]Item, 0, plan.Count())
	for _, cand := range plan.Snapshots {
		items = append(items, s.deleteOne(ctx, "snapshot", cand, s.Client.DeleteSnapshot))
	}
	for _, cand := range plan.Shares {
		items = append(items, s.deleteOne(ctx, "share", cand, s.Client.DeleteShare))
	}
	return items
}

func (s *Sweeper) deleteOne(ctx context.Context, kind string, cand Candidate, del func(context.Context, string) error) Item {
	item := Item{Candidate: cand, Kind: kind}
	log := s.Log.WithField(kind, cand.Name)
	err := del(ctx, cand.ObjectID)
	var notFound *hnasapi.NotFoundError
	switch {
	case err == nil:
		item.Deleted = true
		log.Info("Deleted expired " + kind)
	case errors.As(err, &notFound):
		item.Deleted = true
		log.Warn("Expired " + kind + " already gone")
	default:
		item.Err = errors.Wrapf(err, "deleting %s %q", kind, cand.Name)
		log.WithError(err).Error("Failed to delete expired " + kind)
	}
	return item
}
