// Package logging builds the per-hook logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New builds the hook logger: logrus at the given level, full timestamps,
// writing to console and teeing to an append-only per-day file named
// <prefix>_<YYYYMMDD>.log under dir. An empty dir disables the file. The
// returned func closes the file.
//
// A log directory we cannot write to must not kill a backup hook, so on any
// file error the logger falls back to console only and says so.
func New(console io.Writer, dir, prefix string, level logrus.Level) (*logrus.Logger, func()) {
	if console == nil {
		console = os.Stdout
	}
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(console)

	closer := func() {}
	if dir == "" {
		return logger, closer
	}

	file, err := openDailyFile(dir, prefix)
	if err != nil {
		logger.Warnf("logging to console only: %v", err)
		return logger, closer
	}
	logger.SetOutput(io.MultiWriter(console, file))
	closer = func() { _ = file.Close() }
	return logger, closer
}

// ParseLevel is logrus.ParseLevel with an info fallback instead of an error;
// a bad --log-level should never abort a backup window.
func ParseLevel(s string) logrus.Level {
	if level, err := logrus.ParseLevel(s); err == nil {
		return level
	}
	return logrus.InfoLevel
}

func openDailyFile(dir, prefix string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating log dir %s", dir)
	}
	name := fmt.Sprintf("%s_%s.log", prefix, time.Now().Format("20060102"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log file %s", path)
	}
	return file, nil
}
