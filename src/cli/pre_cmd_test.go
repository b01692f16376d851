package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnas-backup/src/hnasapi"
	"hnas-backup/src/statestore"
)

func TestPreCmd_CreatesSnapshotsSharesAndState(t *testing.T) {
	stateFile := setHookEnv(t)
	fake := seededFake()
	injectFake(t, fake)

	out, _, err := runCLI("pre")
	require.NoError(t, err)

	assert.Len(t, fake.SnapshotsMap, 2)
	assert.Len(t, fake.SharesMap, 2)
	assert.Contains(t, out, "[1/2]")
	assert.Contains(t, out, "[2/2]")

	sess, err := statestore.New(stateFile).Load()
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, sess.Entries, 2)
	assert.Equal(t, "veeam", sess.AppSearchID)
	assert.Equal(t, "hnas.example.com", sess.Host)
	assert.NotNil(t, sess.Entries[0].Share)
}

func TestPreCmd_ShareCreationDisabled(t *testing.T) {
	stateFile := setHookEnv(t)
	t.Setenv("HNAS_CREATE_SMB_SHARE", "false")
	fake := seededFake()
	injectFake(t, fake)

	_, _, err := runCLI("pre")
	require.NoError(t, err)
	assert.Len(t, fake.SnapshotsMap, 2)
	assert.Empty(t, fake.SharesMap)

	sess, err := statestore.New(stateFile).Load()
	require.NoError(t, err)
	assert.Nil(t, sess.Entries[0].Share)
}

func TestPreCmd_PartialFailureStillPersistsSurvivors(t *testing.T) {
	stateFile := setHookEnv(t)
	t.Setenv("HNAS_FILESYSTEMS", "FS1,Bogus,FS2")
	fake := seededFake()
	injectFake(t, fake)

	out, _, err := runCLI("pre")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Contains(t, out, "failed")

	sess, loadErr := statestore.New(stateFile).Load()
	require.NoError(t, loadErr)
	require.NotNil(t, sess)
	assert.Len(t, sess.Entries, 2)
}

func TestPreCmd_MissingCredentials(t *testing.T) {
	setHookEnv(t)
	t.Setenv("HNAS_PASSWORD", "")
	injectFake(t, seededFake())

	_, _, err := runCLI("pre")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HNAS_PASSWORD")
}

func TestPreCmd_NoFilesystemsConfigured(t *testing.T) {
	setHookEnv(t)
	t.Setenv("HNAS_FILESYSTEMS", "")
	injectFake(t, seededFake())

	_, _, err := runCLI("pre")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HNAS_FILESYSTEMS")
}

func TestPreCmd_UnreachableHostAbortsBeforeSnapshots(t *testing.T) {
	stateFile := setHookEnv(t)
	fake := seededFake()
	fake.ServerErr = &hnasapi.ConnectionError{Host: "hnas.example.com"}
	injectFake(t, fake)

	_, _, err := runCLI("pre")
	require.Error(t, err)
	assert.Empty(t, fake.SnapshotsMap)

	_, statErr := os.Stat(stateFile)
	assert.True(t, os.IsNotExist(statErr), "no state file should be written")
}

func TestPreCmd_DryRun(t *testing.T) {
	stateFile := setHookEnv(t)
	fake := seededFake()
	injectFake(t, fake)

	out, _, err := runCLI("--dry-run", "pre")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")
	assert.Empty(t, fake.SnapshotsMap)
	assert.Empty(t, fake.SharesMap)

	_, statErr := os.Stat(stateFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPreCmd_EnvFileOverride(t *testing.T) {
	setHookEnv(t)
	fake := seededFake()
	injectFake(t, fake)

	envFile := filepath.Join(t.TempDir(), "override.env")
	require.NoError(t, os.WriteFile(envFile, []byte("HNAS_SMB_SHARE_NAME=MigrationShare\n"), 0o600))

	_, _, err := runCLI("--env-file", envFile, "pre")
	require.NoError(t, err)
	for _, share := range fake.SharesMap {
		assert.Contains(t, share.Name, "MigrationShare_")
	}
	require.Len(t, fake.SharesMap, 2)
}
