// Package statestore persists the correlation between one backup run's
// filesystems and the snapshots/shares created for them. It is the only
// channel of state between the pre and post hook processes.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ShareInfo records a CIFS share created for snapshot access.
type ShareInfo struct {
	ObjectID string `json:"objectId"`
	Name     string `json:"name"`
	Path     string `json:"path"`
}

// Entry correlates one filesystem with the snapshot (and optional share)
// the pre hook created for it. Immutable once written.
type Entry struct {
	FilesystemRef    string     `json:"filesystemRef"`
	FilesystemID     string     `json:"filesystemId"`
	FilesystemName   string     `json:"filesystemName"`
	VirtualServerID  string     `json:"virtualServerId,omitempty"`
	SnapshotObjectID string     `json:"snapshotObjectId"`
	SnapshotName     string     `json:"snapshotName"`
	CreatedAt        time.Time  `json:"createdAt"`
	RetentionSeconds int64      `json:"retentionSeconds,omitempty"`
	Share            *ShareInfo `json:"share,omitempty"`
}

// Session is the full document written after the pre hook and consumed by
// the post hook. Its lifetime spans exactly one backup-job run.
type Session struct {
	RunID       string  `json:"runId"`
	Timestamp   string  `json:"timestamp"`
	Host        string  `json:"host"`
	AppSearchID string  `json:"appSearchId"`
	Entries     []Entry `json:"entries"`
}

// StateError means the state file exists but could not be read or parsed.
// The post hook aborts on it and leaves the file in place for inspection;
// only a genuinely absent file counts as "no prior state".
type StateError struct {
	Path string
	Err  error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state file %s unusable: %v", e.Path, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// Store reads and writes the session document at a fixed path.
type Store struct {
	fs   afero.Fs
	path string
}

// New returns a store backed by the OS filesystem.
func New(path string) *Store {
	return NewWithFs(afero.NewOsFs(), path)
}

// NewWithFs lets tests substitute an in-memory filesystem.
func NewWithFs(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

func (s *Store) Path() string { return s.path }

// Save writes the session atomically: marshal, write to a temp file next to
// the target, rename over it. A crash mid-write leaves either the previous
// document or none, never a truncated one.
func (s *Store) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// Load reads the session back. An absent file is not an error: it returns
// (nil, nil) and the caller decides how loudly to warn. Unreadable or
// malformed content returns a *StateError.
func (s *Store) Load() (*Session, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &StateError{Path: s.path, Err: err}
	}
	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, &StateError{Path: s.path, Err: err}
	}
	return sess, nil
}

// Clear removes the state file so a stale post-hook re-run cannot
// double-process the same entries. Already gone is fine.
func (s *Store) Clear() error {
	err := s.fs.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
