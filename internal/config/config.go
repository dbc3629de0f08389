// Package config loads recordkeep settings.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, a .env file, then RECORDKEEP_* environment variables. Command
// line flags are applied by the caller through LoadOptions. The merged result
// is checked against an embedded CUE schema.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RECORDKEEP_"

// DefaultDotEnv is the .env file read when LoadOptions.DotEnv is empty.
const DefaultDotEnv = ".env"

// Config is the merged configuration.
type Config struct {
	// DataDir holds the collection files.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// BackupDir is the default target for backups.
	BackupDir string `yaml:"backup_dir" env:"BACKUP_DIR"`

	// AuditLogPath is the NDJSON audit mirror. Relative paths are resolved
	// against DataDir; empty disables the mirror.
	AuditLogPath string `yaml:"audit_log_path" env:"AUDIT_LOG_PATH"`

	Lock  LockConfig  `yaml:"lock" envPrefix:"LOCK_"`
	Audit AuditConfig `yaml:"audit" envPrefix:"AUDIT_"`
}

// LockConfig tunes collection locking.
type LockConfig struct {
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RetryInterval time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
}

// AuditConfig tunes the audit journal.
type AuditConfig struct {
	BatchSize    int           `yaml:"batch_size" env:"BATCH_SIZE"`
	FlushDelay   time.Duration `yaml:"flush_delay" env:"FLUSH_DELAY"`
	RetryDelay   time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	DefaultActor string        `yaml:"default_actor" env:"DEFAULT_ACTOR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:      "data",
		BackupDir:    "backups",
		AuditLogPath: "logs/audit.ndjson",
		Lock: LockConfig{
			Timeout:       5 * time.Second,
			RetryInterval: 25 * time.Millisecond,
		},
		Audit: AuditConfig{
			BatchSize:    20,
			FlushDelay:   10 * time.Millisecond,
			RetryDelay:   time.Second,
			DefaultActor: "system",
		},
	}
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is a YAML config file. Empty skips the file layer; a named file
	// that does not exist is an error.
	File string

	// DotEnv is the .env file. Default: ".env". A missing file is skipped.
	DotEnv string

	// Environ replaces the process environment when non-nil.
	Environ map[string]string

	// DataDir, when set, overrides every other source.
	DataDir string

	// BackupDir, when set, overrides every other source.
	BackupDir string
}

// Load merges all sources and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		if err := cfg.mergeYAML(opts.File); err != nil {
			return nil, err
		}
	}

	environ, err := buildEnviron(opts)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.BackupDir != "" {
		cfg.BackupDir = opts.BackupDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeYAML overlays the keys present in path onto cfg. Unknown keys are
// rejected.
func (c *Config) mergeYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	slog.Debug("config file loaded", "path", path)
	return nil
}

// buildEnviron returns the environment with .env values filled in for keys
// the environment does not already set.
func buildEnviron(opts LoadOptions) (map[string]string, error) {
	environ := opts.Environ
	if environ == nil {
		environ = env.ToMap(os.Environ())
	} else {
		environ = cloneMap(environ)
	}

	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = DefaultDotEnv
	}
	values, err := godotenv.Read(dotenv)
	if errors.Is(err, os.ErrNotExist) {
		return environ, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config dotenv %s: %w", dotenv, err)
	}

	for k, v := range values {
		if _, set := environ[k]; !set {
			environ[k] = v
		}
	}
	slog.Debug("dotenv loaded", "path", dotenv, "keys", len(values))
	return environ, nil
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MirrorPath returns the audit mirror path, resolved against DataDir.
func (c *Config) MirrorPath() string {
	if c.AuditLogPath == "" || filepath.IsAbs(c.AuditLogPath) {
		return c.AuditLogPath
	}
	return filepath.Join(c.DataDir, c.AuditLogPath)
}

// String renders the config as YAML for diagnostics.
func (c *Config) String() string {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	_ = enc.Close()
	return b.String()
}
