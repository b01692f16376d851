package hnasapi

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// FakeClient is an in-memory implementation for unit tests. Tests seed the
// exported maps directly and can force failures per resource id through the
// *Err fields.
type FakeClient struct {
	ServerName     string
	FilesystemsMap map[string]Filesystem // keyed by filesystem id
	SnapshotsMap   map[string]Snapshot   // keyed by snapshot object id
	SharesMap      map[string]Share      // keyed by share object id

	// Now supplies creation timestamps for snapshots; defaults to time.Now.
	Now func() time.Time

	ServerErr          error
	ListFilesystemsErr error
	CreateSnapshotErr  map[string]error // keyed by filesystem id
	CreateShareErr     map[string]error // keyed by filesystem id
	ListSnapshotsErr   map[string]error // keyed by filesystem id
	ListSharesErr      map[string]error // keyed by virtual server id
	DeleteSnapshotErr  map[string]error // keyed by snapshot object id
	DeleteShareErr     map[string]error // keyed by share object id

	// DeleteCalls records "snapshot/<id>" and "share/<id>" in call order so
	// tests can assert shares go before their snapshots.
	DeleteCalls []string

	nextSnapshot int
	nextShare    int
}

func NewFake() *FakeClient {
	return &FakeClient{
		FilesystemsMap:    map[string]Filesystem{},
		SnapshotsMap:      map[string]Snapshot{},
		SharesMap:         map[string]Share{},
		CreateSnapshotErr: map[string]error{},
		CreateShareErr:    map[string]error{},
		ListSnapshotsErr:  map[string]error{},
		ListSharesErr:     map[string]error{},
		DeleteSnapshotErr: map[string]error{},
		DeleteShareErr:    map[string]error{},
	}
}

func (f *FakeClient) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *FakeClient) Server(ctx context.Context) (ServerInfo, error) {
	if f.ServerErr != nil {
		return ServerInfo{}, f.ServerErr
	}
	return ServerInfo{Name: f.ServerName}, nil
}

func (f *FakeClient) ListFilesystems(ctx context.Context) ([]Filesystem, error) {
	if f.ListFilesystemsErr != nil {
		return nil, f.ListFilesystemsErr
	}
	out := make([]Filesystem, 0, len(f.FilesystemsMap))
	for _, fs := range f.FilesystemsMap {
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (f *FakeClient) GetFilesystem(ctx context.Context, id string) (Filesystem, error) {
	fs, ok := f.FilesystemsMap[id]
	if !ok {
		return Filesystem{}, &NotFoundError{Resource: "filesystem", ID: id}
	}
	return fs, nil
}

func (f *FakeClient) CreateSnapshot(ctx context.Context, spec SnapshotSpec) (Snapshot, error) {
	if err := f.CreateSnapshotErr[spec.FilesystemID]; err != nil {
		return Snapshot{}, err
	}
	if _, ok := f.FilesystemsMap[spec.FilesystemID]; !ok {
		return Snapshot{}, &NotFoundError{Resource: "filesystem", ID: spec.FilesystemID}
	}
	f.nextSnapshot++
	snap := Snapshot{
		ObjectID:     fmt.Sprintf("snapshot-%04d", f.nextSnapshot),
		DisplayName:  spec.DisplayName,
		FilesystemID: spec.FilesystemID,
		AppSearchID:  spec.AppSearchID,
		CreationTime: UnixTime(f.now().Unix()),
	}
	f.SnapshotsMap[snap.ObjectID] = snap
	return snap, nil
}

func (f *FakeClient) ListSnapshots(ctx context.Context, filesystemID, appSearchID string) ([]Snapshot, error) {
	if err := f.ListSnapshotsErr[filesystemID]; err != nil {
		return nil, err
	}
	out := []Snapshot{}
	for _, s := range f.SnapshotsMap {
		if s.FilesystemID != filesystemID {
			continue
		}
		if appSearchID != "" && appSearchID != "null" && s.AppSearchID != appSearchID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out, nil
}

func (f *FakeClient) DeleteSnapshot(ctx context.Context, objectID string) error {
	f.DeleteCalls = append(f.DeleteCalls, "snapshot/"+objectID)
	if err := f.DeleteSnapshotErr[objectID]; err != nil {
		return err
	}
	if _, ok := f.SnapshotsMap[objectID]; !ok {
		return &NotFoundError{Resource: "snapshot", ID: objectID}
	}
	delete(f.SnapshotsMap, objectID)
	return nil
}

func (f *FakeClient) CreateShare(ctx context.Context, spec ShareSpec) (Share, error) {
	if err := f.CreateShareErr[spec.FilesystemID]; err != nil {
		return Share{}, err
	}
	for _, s := range f.SharesMap {
		if s.Name == spec.Name && s.VirtualServerID == spec.VirtualServerID {
			return Share{}, &ConflictError{Resource: "share", Name: spec.Name}
		}
	}
	f.nextShare++
	share := Share{
		ObjectID:        fmt.Sprintf("share-%04d", f.nextShare),
		Name:            spec.Name,
		Path:            spec.Path,
		FilesystemID:    spec.FilesystemID,
		VirtualServerID: spec.VirtualServerID,
	}
	f.SharesMap[share.ObjectID] = share
	return share, nil
}

func (f *FakeClient) ListShares(ctx context.Context, virtualServerID string) ([]Share, error) {
	if err := f.ListSharesErr[virtualServerID]; err != nil {
		return nil, err
	}
	out := []Share{}
	for _, s := range f.SharesMap {
		if s.VirtualServerID == virtualServerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out, nil
}

func (f *FakeClient) DeleteShare(ctx context.Context, objectID string) error {
	f.DeleteCalls = append(f.DeleteCalls, "share/"+objectID)
	if err := f.DeleteShareErr[objectID]; err != nil {
		return err
	}
	if _, ok := f.SharesMap[objectID]; !ok {
		return &NotFoundError{Resource: "share", ID: objectID}
	}
	delete(f.SharesMap, objectID)
	return nil
}
