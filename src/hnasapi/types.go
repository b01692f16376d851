package hnasapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServerInfo exposes the file-device metadata we care about.
type ServerInfo struct {
	Name string `json:"name"`
}

// Filesystem models an HNAS filesystem as returned by /filesystems.
type Filesystem struct {
	FilesystemID    string `json:"filesystemId"`
	Label           string `json:"label"`
	VirtualServerID string `json:"virtualServerId"`
}

// UnixTime unmarshals the HNAS creationTime field, which the API has been
// observed to return both as a JSON number and as a quoted string.
type UnixTime int64

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("creationTime %q is not a unix timestamp", s)
	}
	*t = UnixTime(n)
	return nil
}

// Time converts to a time.Time. Zero values stay zero.
func (t UnixTime) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t), 0)
}

// Snapshot models an HNAS filesystem snapshot.
type Snapshot struct {
	ObjectID     string   `json:"objectId"`
	DisplayName  string   `json:"displayName"`
	FilesystemID string   `json:"filesystemId"`
	AppSearchID  string   `json:"appSearchId,omitempty"`
	CreationTime UnixTime `json:"creationTime"`
}

// SnapshotSpec is the create-snapshot request body. RetentionInterval 0 is
// omitted on the wire: the API then applies no automatic expiry of its own.
type SnapshotSpec struct {
	FilesystemID      string `json:"filesystemId"`
	DisplayName       string `json:"displayName"`
	AppSearchID       string `json:"appSearchId,omitempty"`
	RetentionInterval int64  `json:"retentionInterval,omitempty"`
}

// Share models a CIFS share exposing snapshot data.
type Share struct {
	ObjectID        string `json:"objectId"`
	Name            string `json:"name"`
	Path            string `json:"path"`
	FilesystemID    string `json:"filesystemId"`
	VirtualServerID string `json:"virtualServerId"`
}

// ShareSpec carries what the coordinator decides about a share; the real
// client expands it to the full CIFS creation payload.
type ShareSpec struct {
	FilesystemID    string
	VirtualServerID string
	Name            string
	Path            string
	Comment         string
}

// Client is a narrow interface over the HNAS REST API (v9) used by our app.
// Keep it small and focused on what we actually need so it stays mockable.
type Client interface {
	// Server probes /file-devices; used as the connectivity check before
	// either hook does any work.
	Server(ctx context.Context) (ServerInfo, error)

	// Filesystems
	ListFilesystems(ctx context.Context) ([]Filesystem, error)
	GetFilesystem(ctx context.Context, id string) (Filesystem, error)

	// Snapshots
	CreateSnapshot(ctx context.Context, spec SnapshotSpec) (Snapshot, error)
	ListSnapshots(ctx context.Context, filesystemID, appSearchID string) ([]Snapshot, error)
	DeleteSnapshot(ctx context.Context, objectID string) error

	// CIFS shares
	CreateShare(ctx context.Context, spec ShareSpec) (Share, error)
	ListShares(ctx context.Context, virtualServerID string) ([]Share, error)
	DeleteShare(ctx context.Context, objectID string) error
}
