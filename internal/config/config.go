// Package config handles configuration loading, validation, and management for keytally.
package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"keytally/internal/keysym"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete keytally configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Sinks configures where key log entries are written.
	Sinks SinksConfig `toml:"sinks" json:"sinks" yaml:"sinks"`

	// Keys configures normalization, filtering and press-state tracking.
	Keys KeysConfig `toml:"keys" json:"keys" yaml:"keys"`

	// Source configures the keyboard event source.
	Source SourceConfig `toml:"source" json:"source" yaml:"source"`

	// Pipeline configures delivery between the tracker and the sinks.
	Pipeline PipelineConfig `toml:"pipeline" json:"pipeline" yaml:"pipeline"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// SinksConfig holds key log destinations.
type SinksConfig struct {
	// SQLiteEnabled enables the SQLite key log.
	SQLiteEnabled bool `toml:"sqlite_enabled" json:"sqlite_enabled" yaml:"sqlite_enabled"`

	// SQLitePath is the path to the key log database.
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path"`

	// FileEnabled enables the plain text key log (one combo per line).
	FileEnabled bool `toml:"file_enabled" json:"file_enabled" yaml:"file_enabled"`

	// FilePath is the path to the plain text key log.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// Retries is how many times a failed write is retried before the
	// entry is dropped.
	Retries int `toml:"retries" json:"retries" yaml:"retries"`

	// RetryBackoffMs is the wait before the first retry; it doubles for
	// each further retry.
	RetryBackoffMs int `toml:"retry_backoff_ms" json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
}

// KeysConfig holds key handling configuration.
type KeysConfig struct {
	// GCThreshold is the press-state size at which an orphan release
	// clears locked-in keys.
	GCThreshold int `toml:"gc_threshold" json:"gc_threshold" yaml:"gc_threshold"`

	// Ignore lists canonical keys that are never tracked, e.g. "<cmd>".
	Ignore []string `toml:"ignore" json:"ignore" yaml:"ignore"`

	// Remap adds raw -> canonical substitutions on top of the built-in
	// left/right modifier collapse, e.g. alt_gr = "<alt>".
	Remap map[string]string `toml:"remap" json:"remap" yaml:"remap"`
}

// SourceConfig holds event source configuration.
type SourceConfig struct {
	// Devices lists evdev device paths. Empty means every keyboard.
	Devices []string `toml:"devices" json:"devices" yaml:"devices"`
}

// PipelineConfig holds delivery configuration.
type PipelineConfig struct {
	// QueueSize is the number of entries buffered ahead of the sinks.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`

	// ShowKeys writes key and combo values into diagnostic logs. Off by
	// default so the log file does not duplicate the key log.
	ShowKeys bool `toml:"show_keys" json:"show_keys" yaml:"show_keys"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := Dir()

	return &Config{
		Version: Version,
		Sinks: SinksConfig{
			SQLiteEnabled:  true,
			SQLitePath:     filepath.Join(dir, "key_log.sqlite"),
			FileEnabled:    false,
			FilePath:       filepath.Join(dir, "key_log.txt"),
			Retries:        2,
			RetryBackoffMs: 50,
		},
		Keys: KeysConfig{
			GCThreshold: 5,
			Ignore:      []string{},
			Remap:       map[string]string{},
		},
		Source: SourceConfig{
			Devices: []string{},
		},
		Pipeline: PipelineConfig{
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "keytally.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
			ShowKeys:   false,
		},
	}
}

// Dir returns the base keytally directory, ~/.keytally unless
// KEYTALLY_HOME is set.
func Dir() string {
	if envDir := os.Getenv("KEYTALLY_HOME"); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keytally"
	}
	return filepath.Join(home, ".keytally")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads configuration from the specified path, applies environment
// overrides and validates the result. A missing file yields the defaults.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories for every enabled output.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Sinks.SQLiteEnabled {
		dirs = append(dirs, filepath.Dir(c.DatabasePath()))
	}
	if c.Sinks.FileEnabled {
		dirs = append(dirs, filepath.Dir(c.KeyLogFilePath()))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.LogPath()))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KEYTALLY_.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("KEYTALLY_DB"); v != "" {
		c.Sinks.SQLitePath = v
	}

	if v := os.Getenv("KEYTALLY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KEYTALLY_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}

	if v := os.Getenv("KEYTALLY_GC_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ValidationError{
				Field:   "KEYTALLY_GC_THRESHOLD",
				Message: fmt.Sprintf("not an integer: %q", v),
			}
		}
		c.Keys.GCThreshold = n
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.Keys.Ignore = slices.Clone(c.Keys.Ignore)
	clone.Keys.Remap = maps.Clone(c.Keys.Remap)
	clone.Source.Devices = slices.Clone(c.Source.Devices)

	return &clone
}

// DatabasePath returns the expanded SQLite key log path.
func (c *Config) DatabasePath() string {
	return expandPath(c.Sinks.SQLitePath)
}

// KeyLogFilePath returns the expanded plain text key log path.
func (c *Config) KeyLogFilePath() string {
	return expandPath(c.Sinks.FilePath)
}

// LogPath returns the expanded diagnostic log file path.
func (c *Config) LogPath() string {
	return expandPath(c.Logging.FilePath)
}

// CrashDir returns the directory crash reports are written to.
func (c *Config) CrashDir() string {
	return filepath.Join(filepath.Dir(c.LogPath()), "crashes")
}

// RetryBackoff returns the first retry wait as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Sinks.RetryBackoffMs) * time.Millisecond
}

// RemapTable returns the built-in remap table with the configured entries
// layered on top.
func (c *Config) RemapTable() (keysym.RemapTable, error) {
	extra, err := keysym.ParseRemap(c.Keys.Remap)
	if err != nil {
		return nil, err
	}
	return keysym.DefaultRemap().With(extra), nil
}

// IgnoreSet returns the configured ignore set.
func (c *Config) IgnoreSet() (keysym.IgnoreSet, error) {
	syms, err := keysym.ParseList(c.Keys.Ignore)
	if err != nil {
		return nil, fmt.Errorf("keys.ignore: %w", err)
	}
	return keysym.NewIgnoreSet(syms...), nil
}
