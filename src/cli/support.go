package cli

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hnas-backup/src/config"
	"hnas-backup/src/hnasapi"
	"hnas-backup/src/logging"
)

type connectorFunc func(config.Config) hnasapi.Client

var connectFn connectorFunc = func(cfg config.Config) hnasapi.Client {
	return hnasapi.Connect(cfg.Host, cfg.Username, cfg.Password, cfg.VerifySSL)
}

// SetConnectorForTest allows tests to stub the API client construction.
// The returned function restores the previous connector.
func SetConnectorForTest(fn connectorFunc) func() {
	prev := connectFn
	connectFn = fn
	return func() {
		connectFn = prev
	}
}

// runtime bundles what a command needs after configuration parsing.
type runtime struct {
	cfg      config.Config
	log      *logrus.Logger
	client   hnasapi.Client
	closeLog func()
}

// setupRuntime applies --env-file, parses the environment configuration,
// opens the hook log, and constructs the API client. Configuration errors
// abort the whole invocation; no per-filesystem work has started yet.
func setupRuntime(cmd *cobra.Command, logPrefix string) (*runtime, error) {
	flags := cmd.Root().PersistentFlags()
	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	levelStr, _ := flags.GetString("log-level")
	log, closeLog := logging.New(cmd.ErrOrStderr(), cfg.LogDir, logPrefix, logging.ParseLevel(levelStr))
	return &runtime{
		cfg:      cfg,
		log:      log,
		client:   connectFn(cfg),
		closeLog: closeLog,
	}, nil
}

// checkServer verifies reachability and credentials before any snapshot
// work; a host we cannot talk to aborts the invocation as a whole.
func (r *runtime) checkServer(ctx context.Context) error {
	info, err := r.client.Server(ctx)
	if err != nil {
		return err
	}
	r.log.WithField("server", info.Name).WithField("host", r.cfg.Host).Info("Connected to HNAS")
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
