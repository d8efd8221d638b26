package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Pipeline identifies the pipeline and constrains its input files.
type Pipeline struct {
	Name                string   `toml:"name"`
	AllowedExtensions   []string `toml:"allowed_extensions"`
	DefaultAdditionType string   `toml:"default_addition_publish_type"`
	DefaultDeletionType string   `toml:"default_deletion_publish_type"`
	IncludeRegexes      []string `toml:"include_regexes"`
	ExcludeRegexes      []string `toml:"exclude_regexes"`
	ArchiveInputFile    bool     `toml:"archive_input_file"`
	DestPathStrategy    string   `toml:"dest_path_strategy"`
	ArchivePathStrategy string   `toml:"archive_path_strategy"`
}

// Paths contains the local directory layout.
type Paths struct {
	IncomingDir string `toml:"incoming_dir"`
	WorkingDir  string `toml:"working_dir"`
	LogDir      string `toml:"log_dir"`
	JournalDir  string `toml:"journal_dir"`
}

// Storage names the upload and archive endpoints. URIs use file:// for a
// local directory tree or s3://bucket/prefix for an S3 bucket.
type Storage struct {
	UploadURI  string `toml:"upload_uri"`
	ArchiveURI string `toml:"archive_uri"`
	S3Region   string `toml:"s3_region"`
}

// Resolve contains parameters for the resolve step.
type Resolve struct {
	// ManifestRoot is prepended to relative paths found in manifest files.
	ManifestRoot string `toml:"manifest_root"`
}

// Check contains parameters for the check step.
type Check struct {
	Strategy string `toml:"strategy"`
}

// Harvest contains parameters for the harvest step.
type Harvest struct {
	Strategy string `toml:"strategy"`
	// DatabasePath locates the harvest database used by the csv strategy.
	DatabasePath string `toml:"database_path"`
	// Command is the external harvester invoked by the exec strategy. The
	// file's source path is appended as the final argument.
	Command []string `toml:"command"`
}

// Notify contains parameters for the notify step. Recipients are
// protocol-prefixed strings, e.g. "email:ops@example.org" or
// "http:https://ntfy.example.org/pipeline".
type Notify struct {
	OwnerList          []string `toml:"owner_notify_list"`
	SuccessList        []string `toml:"success_notify_list"`
	ErrorList          []string `toml:"error_notify_list"`
	NotifyOwnerSuccess bool     `toml:"notify_owner_on_success"`
	NotifyOwnerError   bool     `toml:"notify_owner_on_error"`
	FromAddress        string   `toml:"from_address"`
	SMTPHost           string   `toml:"smtp_host"`
	SMTPPort           int      `toml:"smtp_port"`
	RequestTimeout     int      `toml:"request_timeout"`
}

// Logging controls log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root configuration structure.
type Config struct {
	Pipeline Pipeline `toml:"pipeline"`
	Paths    Paths    `toml:"paths"`
	Storage  Storage  `toml:"storage"`
	Resolve  Resolve  `toml:"resolve"`
	Check    Check    `toml:"check"`
	Harvest  Harvest  `toml:"harvest"`
	Notify   Notify   `toml:"notify"`
	Logging  Logging  `toml:"logging"`
}

// Load reads and decodes the configuration file at path, applying defaults
// for absent fields. The result is not validated; call Validate before use.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist (create with 'tideflow config init')", path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyFallbacks()
	return &cfg, nil
}

// DefaultConfigPath returns the conventional location of the config file.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tideflow", "config.toml"), nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the working, log, and journal directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkingDir, c.Paths.LogDir, c.Paths.JournalDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) applyFallbacks() {
	if c.Paths.JournalDir == "" {
		c.Paths.JournalDir = c.Paths.LogDir
	}
	if c.Notify.SMTPPort == 0 {
		c.Notify.SMTPPort = 25
	}
	if c.Notify.RequestTimeout <= 0 {
		c.Notify.RequestTimeout = 10
	}
}
