// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"tideflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a validated-shape config seeded with unique temp
// directories per test: file:// storage under the temp dir, the csv harvest
// strategy against a temp database, and no notification recipients.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Pipeline.Name = "testpipe"
	cfg.Paths.IncomingDir = filepath.Join(base, "incoming")
	cfg.Paths.WorkingDir = filepath.Join(base, "working")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.JournalDir = filepath.Join(base, "journal")
	cfg.Storage.UploadURI = "file://" + filepath.Join(base, "upload")
	cfg.Storage.ArchiveURI = "file://" + filepath.Join(base, "archive")
	cfg.Harvest.DatabasePath = filepath.Join(base, "harvest.db")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithCheckStrategy overrides the check strategy on the test config.
func WithCheckStrategy(strategy string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Check.Strategy = strategy
	}
}

// WithPublishTypes overrides the default addition and deletion publish types.
func WithPublishTypes(addition, deletion string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.DefaultAdditionType = addition
		cfg.Pipeline.DefaultDeletionType = deletion
	}
}
