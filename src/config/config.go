// Package config turns the loosely-typed environment contract shared with
// the Veeam job scheduler into one validated struct. Every knob arrives as
// an environment variable; nothing here is read ad hoc elsewhere.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	envHost              = "HNAS_HOST"
	envUsername          = "HNAS_USERNAME"
	envPassword          = "HNAS_PASSWORD"
	envFilesystems       = "HNAS_FILESYSTEMS"
	envAppSearchID       = "HNAS_APP_SEARCH_ID"
	envRetentionInterval = "HNAS_RETENTION_INTERVAL"
	envVerifySSL         = "HNAS_VERIFY_SSL"
	envCreateShare       = "HNAS_CREATE_SMB_SHARE"
	envShareName         = "HNAS_SMB_SHARE_NAME"
	envCleanupOnSuccess  = "HNAS_CLEANUP_ON_SUCCESS"
	envCleanupOnFailure  = "HNAS_CLEANUP_ON_FAILURE"
	envRetentionDays     = "HNAS_RETENTION_DAYS"
	envStateFile         = "VEEAM_SNAPSHOT_INFO"
	envLogDir            = "VEEAM_LOG_DIR"
	envJobResult         = "VEEAM_JOB_RESULT"
	envSessionResult     = "VEEAM_SESSION_RESULT"
)

// Config is the parsed hook configuration.
type Config struct {
	Host     string
	Username string
	Password string

	// Filesystems holds the configured references (names or canonical ids)
	// in input order.
	Filesystems []string

	// AppSearchID tags every snapshot this tool creates so later runs can
	// find them in bulk.
	AppSearchID string

	// RetentionInterval, in seconds, is handed to the API at snapshot
	// creation; 0 disables the API's own expiry mechanism.
	RetentionInterval int64

	VerifySSL   bool
	CreateShare bool
	ShareName   string

	CleanupOnSuccess bool
	CleanupOnFailure bool

	// RetentionDays bounds how long tagged snapshots from past runs may
	// linger before the sweeper removes them; 0 disables sweeping.
	RetentionDays int

	StateFile string
	LogDir    string
}

// LoadEnvFile overloads the process environment from a KEY=VALUE file, the
// same way credentials files are handed to cloud CLIs. Values in the file
// win over inherited environment.
func LoadEnvFile(path string) error {
	return errors.Wrapf(godotenv.Overload(path), "loading env file %s", path)
}

// FromEnv parses and validates the environment. Host and credentials are
// always required; the filesystem list is checked by the commands that need
// it, since the post hook can run usefully without one.
func FromEnv() (Config, error) {
	cfg := Config{
		Host:             os.Getenv(envHost),
		Username:         os.Getenv(envUsername),
		Password:         os.Getenv(envPassword),
		Filesystems:      splitList(os.Getenv(envFilesystems)),
		AppSearchID:      getDefault(envAppSearchID, "veeam"),
		VerifySSL:        parseBool(envVerifySSL, false),
		CreateShare:      parseBool(envCreateShare, true),
		ShareName:        getDefault(envShareName, "VeeamNASBackup"),
		CleanupOnSuccess: parseBool(envCleanupOnSuccess, false),
		CleanupOnFailure: parseBool(envCleanupOnFailure, true),
		StateFile:        getDefault(envStateFile, defaultStateFile()),
		LogDir:           getDefault(envLogDir, defaultLogDir()),
	}

	var missing []string
	for _, v := range []struct{ name, val string }{
		{envHost, cfg.Host},
		{envUsername, cfg.Username},
		{envPassword, cfg.Password},
	} {
		if v.val == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return Config{}, errors.Errorf("missing required configuration: set %s", strings.Join(missing, ", "))
	}

	interval, err := parseInt(envRetentionInterval, 0)
	if err != nil {
		return Config{}, err
	}
	cfg.RetentionInterval = int64(interval)

	cfg.RetentionDays, err = parseInt(envRetentionDays, 7)
	if err != nil {
		return Config{}, err
	}
	if cfg.RetentionInterval < 0 || cfg.RetentionDays < 0 {
		return Config{}, errors.Errorf("%s and %s must not be negative", envRetentionInterval, envRetentionDays)
	}
	return cfg, nil
}

// RequireFilesystems is the extra validation applied by commands that cannot
// run with an empty filesystem list.
func (c Config) RequireFilesystems() error {
	if len(c.Filesystems) == 0 {
		return errors.Errorf("no filesystems specified: set %s to a comma-separated list of names or ids", envFilesystems)
	}
	return nil
}

// JobResult reports the backup job outcome as handed over by the scheduler.
func JobResult() string {
	if r := os.Getenv(envJobResult); r != "" {
		return r
	}
	return os.Getenv(envSessionResult)
}

// IsSuccessResult interprets a job result string. Veeam reports Success,
// Warning, or Failed; a warning run still produced a usable backup.
func IsSuccessResult(result string) bool {
	return strings.EqualFold(result, "Success") || strings.EqualFold(result, "Warning")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}

func parseInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func defaultStateFile() string {
	if runtime.GOOS == "windows" {
		return `C:\VeeamScripts\hnas_snapshot_info.json`
	}
	return "/var/lib/hnas-backup/snapshot_info.json"
}

func defaultLogDir() string {
	if runtime.GOOS == "windows" {
		return `C:\VeeamScripts\Logs`
	}
	return "/var/log/hnas-backup"
}
