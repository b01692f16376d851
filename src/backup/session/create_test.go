package session_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnas-backup/src/backup/session"
	"hnas-backup/src/hnasapi"
)

const (
	fs1ID = "0123456789abcdef0123456789abcdef"
	fs2ID = "fedcba9876543210fedcba9876543210"
)

var base = time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// ticker hands out strictly increasing timestamps, one second apart, so
// names derived from separate clock reads can be told apart.
type ticker struct {
	next time.Time
}

func (c *ticker) now() time.Time {
	t := c.next
	c.next = t.Add(time.Second)
	return t
}

func seededFake() *hnasapi.FakeClient {
	fake := hnasapi.NewFake()
	fake.ServerName = "hnas-01"
	fake.FilesystemsMap[fs1ID] = hnasapi.Filesystem{FilesystemID: fs1ID, Label: "FS1", VirtualServerID: "1"}
	fake.FilesystemsMap[fs2ID] = hnasapi.Filesystem{FilesystemID: fs2ID, Label: "FS2", VirtualServerID: "2"}
	fake.Now = func() time.Time { return base }
	return fake
}

func newCoordinator(fake *hnasapi.FakeClient) *session.Coordinator {
	coord := session.New(fake, testLogger())
	clock := &ticker{next: base}
	coord.Now = clock.now
	return coord
}

func TestCreatePhase_SnapshotsAndShares(t *testing.T) {
	fake := seededFake()
	coord := newCoordinator(fake)

	sess, results := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems:       []string{"FS1", "FS2"},
		AppSearchID:       "veeam",
		RetentionInterval: 3600,
		CreateShare:       true,
		ShareName:         "VeeamNASBackup",
		Host:              "hnas.example.com",
	})

	require.Len(t, results, 2)
	for _, res := range results {
		require.NoError(t, res.Err)
		require.NoError(t, res.ShareErr)
		assert.False(t, res.Failed())
	}

	stamp := base.Format("20060102_150405")
	require.Len(t, sess.Entries, 2)
	assert.Equal(t, "veeam_FS1_"+stamp, sess.Entries[0].SnapshotName)
	assert.Equal(t, "veeam_FS2_"+stamp, sess.Entries[1].SnapshotName)
	assert.Equal(t, fs1ID, sess.Entries[0].FilesystemID)
	assert.Equal(t, "1", sess.Entries[0].VirtualServerID)
	assert.EqualValues(t, 3600, sess.Entries[0].RetentionSeconds)

	assert.NotEmpty(t, sess.RunID)
	assert.Equal(t, stamp, sess.Timestamp)
	assert.Equal(t, "hnas.example.com", sess.Host)
	assert.Equal(t, "veeam", sess.AppSearchID)

	assert.Len(t, fake.SnapshotsMap, 2)
	assert.Len(t, fake.SharesMap, 2)
}

func TestCreatePhase_ShareNamesGetFreshTimestamps(t *testing.T) {
	fake := seededFake()
	coord := newCoordinator(fake)

	sess, _ := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"FS1", "FS2"},
		AppSearchID: "veeam",
		CreateShare: true,
		ShareName:   "VeeamNASBackup",
	})

	require.Len(t, sess.Entries, 2)
	require.NotNil(t, sess.Entries[0].Share)
	require.NotNil(t, sess.Entries[1].Share)
	assert.Equal(t, "VeeamNASBackup_"+base.Add(1*time.Second).Format("20060102_150405"), sess.Entries[0].Share.Name)
	assert.Equal(t, "VeeamNASBackup_"+base.Add(2*time.Second).Format("20060102_150405"), sess.Entries[1].Share.Name)
	assert.NotEqual(t, sess.Entries[0].Share.Name, sess.Entries[1].Share.Name)

	assert.Equal(t, `\.snapshot\`+sess.Entries[0].SnapshotName, sess.Entries[0].Share.Path)
}

func TestCreatePhase_WithoutShares(t *testing.T) {
	fake := seededFake()
	coord := newCoordinator(fake)

	sess, results := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"FS1"},
		AppSearchID: "veeam",
	})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Len(t, sess.Entries, 1)
	assert.Nil(t, sess.Entries[0].Share)
	assert.Empty(t, fake.SharesMap)
}

func TestCreatePhase_PartialFailureContinues(t *testing.T) {
	fake := seededFake()
	coord := newCoordinator(fake)

	sess, results := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"FS1", "NoSuchFS", "FS2"},
		AppSearchID: "veeam",
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.True(t, results[1].Failed())
	assert.NoError(t, results[2].Err)

	// Both healthy filesystems still got their snapshots.
	require.Len(t, sess.Entries, 2)
	assert.Equal(t, "FS1", sess.Entries[0].FilesystemName)
	assert.Equal(t, "FS2", sess.Entries[1].FilesystemName)
}

func TestCreatePhase_SnapshotFailureSkipsShare(t *testing.T) {
	fake := seededFake()
	fake.CreateSnapshotErr[fs1ID] = assert.AnError
	coord := newCoordinator(fake)

	sess, results := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"FS1"},
		AppSearchID: "veeam",
		CreateShare: true,
		ShareName:   "VeeamNASBackup",
	})

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Empty(t, sess.Entries)
	assert.Empty(t, fake.SharesMap)
}

func TestCreatePhase_ShareFailureKeepsSnapshot(t *testing.T) {
	fake := seededFake()
	fake.CreateShareErr[fs1ID] = assert.AnError
	coord := newCoordinator(fake)

	sess, results := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"FS1"},
		AppSearchID: "veeam",
		CreateShare: true,
		ShareName:   "VeeamNASBackup",
	})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Error(t, results[0].ShareErr)
	assert.True(t, results[0].Failed())

	// The entry is persisted share-less so the post hook still cleans the
	// snapshot up.
	require.Len(t, sess.Entries, 1)
	assert.Nil(t, sess.Entries[0].Share)
	assert.Len(t, fake.SnapshotsMap, 1)
}

func TestCreatePhase_NoVirtualServerFailsShareOnly(t *testing.T) {
	fake := seededFake()
	noVS := "22222222222222222222222222222222"
	fake.FilesystemsMap[noVS] = hnasapi.Filesystem{FilesystemID: noVS, Label: "Orphan"}
	coord := newCoordinator(fake)

	sess, results := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"Orphan"},
		AppSearchID: "veeam",
		CreateShare: true,
		ShareName:   "VeeamNASBackup",
	})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Error(t, results[0].ShareErr)
	require.Len(t, sess.Entries, 1)
	assert.Nil(t, sess.Entries[0].Share)
}

func TestCreatePhase_ReRunsProduceDistinctNames(t *testing.T) {
	fake := seededFake()
	coord := newCoordinator(fake)

	first, _ := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"FS1"},
		AppSearchID: "veeam",
	})
	second, _ := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"FS1"},
		AppSearchID: "veeam",
	})

	require.Len(t, first.Entries, 1)
	require.Len(t, second.Entries, 1)
	assert.NotEqual(t, first.Entries[0].SnapshotName, second.Entries[0].SnapshotName)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, fake.SnapshotsMap, 2)
}

func TestCreatePhase_DryRunCreatesNothing(t *testing.T) {
	fake := seededFake()
	coord := newCoordinator(fake)

	sess, results := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"FS1", "FS2"},
		AppSearchID: "veeam",
		CreateShare: true,
		ShareName:   "VeeamNASBackup",
		DryRun:      true,
	})

	require.Len(t, results, 2)
	for _, res := range results {
		assert.NoError(t, res.Err)
		assert.Nil(t, res.Entry)
	}
	assert.Empty(t, sess.Entries)
	assert.Empty(t, fake.SnapshotsMap)
	assert.Empty(t, fake.SharesMap)
}

func TestCreatePhase_DryRunStillReportsUnresolvable(t *testing.T) {
	fake := seededFake()
	coord := newCoordinator(fake)

	_, results := coord.CreatePhase(context.Background(), session.CreateOptions{
		Filesystems: []string{"NoSuchFS"},
		AppSearchID: "veeam",
		DryRun:      true,
	})

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}
