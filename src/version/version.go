package version

// Version is the hnas-backup release version. Overridden at build time via
// -ldflags "-X hnas-backup/src/version.Version=v1.2.3".
var Version = "0.3.0-dev"
