package cli_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"hnas-backup/src/cli"
	"hnas-backup/src/config"
	"hnas-backup/src/hnasapi"
)

const (
	fs1ID = "0123456789abcdef0123456789abcdef"
	fs2ID = "fedcba9876543210fedcba9876543210"
)

// setHookEnv pins every configuration variable the commands read, pointing
// file paths into the test's temp dir. Returns the state file path.
func setHookEnv(t *testing.T) string {
	t.Helper()
	stateFile := filepath.Join(t.TempDir(), "state.json")
	t.Setenv("HNAS_HOST", "hnas.example.com")
	t.Setenv("HNAS_USERNAME", "admin")
	t.Setenv("HNAS_PASSWORD", "secret")
	t.Setenv("HNAS_FILESYSTEMS", "FS1,FS2")
	t.Setenv("HNAS_APP_SEARCH_ID", "veeam")
	t.Setenv("HNAS_RETENTION_INTERVAL", "")
	t.Setenv("HNAS_VERIFY_SSL", "")
	t.Setenv("HNAS_CREATE_SMB_SHARE", "")
	t.Setenv("HNAS_SMB_SHARE_NAME", "VeeamNASBackup")
	t.Setenv("HNAS_CLEANUP_ON_SUCCESS", "")
	t.Setenv("HNAS_CLEANUP_ON_FAILURE", "")
	t.Setenv("HNAS_RETENTION_DAYS", "")
	t.Setenv("VEEAM_SNAPSHOT_INFO", stateFile)
	t.Setenv("VEEAM_LOG_DIR", t.TempDir())
	t.Setenv("VEEAM_JOB_RESULT", "")
	t.Setenv("VEEAM_SESSION_RESULT", "")
	return stateFile
}

func seededFake() *hnasapi.FakeClient {
	fake := hnasapi.NewFake()
	fake.ServerName = "hnas-01"
	fake.FilesystemsMap[fs1ID] = hnasapi.Filesystem{FilesystemID: fs1ID, Label: "FS1", VirtualServerID: "1"}
	fake.FilesystemsMap[fs2ID] = hnasapi.Filesystem{FilesystemID: fs2ID, Label: "FS2", VirtualServerID: "2"}
	return fake
}

func injectFake(t *testing.T, fake *hnasapi.FakeClient) {
	t.Helper()
	restore := cli.SetConnectorForTest(func(config.Config) hnasapi.Client { return fake })
	t.Cleanup(restore)
}

// runCLI executes the root command with captured stdio.
func runCLI(args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	cmd := cli.NewRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// seedExpiredSnapshot plants a tagged snapshot old enough for the default
// retention window to catch.
func seedExpiredSnapshot(fake *hnasapi.FakeClient, objectID, fsID, name string) {
	fake.SnapshotsMap[objectID] = hnasapi.Snapshot{
		ObjectID:     objectID,
		DisplayName:  name,
		FilesystemID: fsID,
		AppSearchID:  "veeam",
		CreationTime: hnasapi.UnixTime(time.Now().AddDate(0, 0, -9).Unix()),
	}
}

func seedExpiredShare(fake *hnasapi.FakeClient, objectID, vsID string) string {
	name := "VeeamNASBackup_" + time.Now().AddDate(0, 0, -9).Format("20060102_150405")
	fake.SharesMap[objectID] = hnasapi.Share{
		ObjectID:        objectID,
		Name:            name,
		VirtualServerID: vsID,
		FilesystemID:    fs1ID,
	}
	return name
}
