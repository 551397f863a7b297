// Package config loads the bot's settings from an optional YAML file and the
// environment. Environment variables win over the file; the file wins over
// the defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete bot configuration.
type Config struct {
	// DataDir anchors every relative path below and holds the PID file.
	DataDir string `yaml:"data_dir"`
	TempDir string `yaml:"temp_dir"`

	Database DatabaseConfig `yaml:"database"`
	Telegram TelegramConfig `yaml:"telegram"`
	API      APIConfig      `yaml:"api"`
	Bulk     BulkConfig     `yaml:"bulk"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// TelegramConfig configures the Telegram transport. An empty token disables it.
type TelegramConfig struct {
	Token       string  `yaml:"token"`
	APIBase     string  `yaml:"api_base,omitempty"`
	PollTimeout string  `yaml:"poll_timeout"`
	RetryDelay  string  `yaml:"retry_delay"`
	AllowedIDs  []int64 `yaml:"allowed_ids,omitempty"`
	AdminIDs    []int64 `yaml:"admin_ids,omitempty"`
	// RateLimit caps messages per user per minute; 0 disables the limit.
	RateLimit int `yaml:"rate_limit"`
}

// APIConfig configures the HTTP API. An empty address disables it.
type APIConfig struct {
	Addr    string `yaml:"addr"`
	Timeout string `yaml:"timeout"`
}

// BulkConfig locates the bulk text file.
type BulkConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"` // reload when the file changes
}

// ArchiveConfig configures the S3 copy of exports. An empty bucket disables it.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// LogConfig selects log level and an optional log file.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".",
		TempDir: "temp",
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join("resources", "sizes.db"),
		},
		Telegram: TelegramConfig{
			PollTimeout: "10s",
			RetryDelay:  "10s",
			RateLimit:   30,
		},
		API: APIConfig{
			Addr:    "127.0.0.1:9090",
			Timeout: "30s",
		},
		Bulk: BulkConfig{
			Path: filepath.Join("resources", "sizes.txt"),
		},
		Archive: ArchiveConfig{
			Prefix: "exports",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path or a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
			}
		}
	}

	set(&c.DataDir, "SIZEBOT_DATA")
	set(&c.TempDir, "SIZEBOT_TEMP_DIR")
	set(&c.Database.Driver, "SIZEBOT_DB_DRIVER")
	set(&c.Database.Path, "SIZEBOT_DB_PATH")
	set(&c.Database.DSN, "SIZEBOT_DB_DSN")
	// TOKEN is the variable the bot has always read; the prefixed one wins.
	set(&c.Telegram.Token, "TOKEN", "SIZEBOT_TELEGRAM_TOKEN")
	set(&c.API.Addr, "SIZEBOT_API_ADDR")
	set(&c.Bulk.Path, "SIZEBOT_BULK_PATH")
	set(&c.Archive.Bucket, "SIZEBOT_ARCHIVE_BUCKET")
	set(&c.Archive.Endpoint, "SIZEBOT_ARCHIVE_ENDPOINT")
	set(&c.Log.Level, "SIZEBOT_LOG_LEVEL")
	set(&c.Log.File, "SIZEBOT_LOG_FILE")

	if v := os.Getenv("SIZEBOT_ADMIN_IDS"); v != "" {
		ids, err := ParseIDs(v)
		if err != nil {
			return fmt.Errorf("SIZEBOT_ADMIN_IDS: %w", err)
		}
		c.Telegram.AdminIDs = ids
	}
	if v := os.Getenv("SIZEBOT_ALLOWED_IDS"); v != "" {
		ids, err := ParseIDs(v)
		if err != nil {
			return fmt.Errorf("SIZEBOT_ALLOWED_IDS: %w", err)
		}
		c.Telegram.AllowedIDs = ids
	}
	return nil
}

// ParseIDs parses a comma-separated list of numeric user IDs.
func ParseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ValidDrivers lists the supported database drivers.
var ValidDrivers = []string{"sqlite", "postgres"}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres (set SIZEBOT_DB_DSN)")
		}
	default:
		return fmt.Errorf("invalid database driver: %q (valid: %v)", c.Database.Driver, ValidDrivers)
	}

	for name, v := range map[string]string{
		"telegram.poll_timeout": c.Telegram.PollTimeout,
		"telegram.retry_delay":  c.Telegram.RetryDelay,
		"api.timeout":           c.API.Timeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %q", name, v)
		}
	}

	if c.Telegram.RateLimit < 0 {
		return fmt.Errorf("invalid telegram.rate_limit: %d", c.Telegram.RateLimit)
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	return nil
}

// Resolve returns p anchored at DataDir unless it is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// DatabasePath returns the resolved sqlite file path.
func (c *Config) DatabasePath() string { return c.Resolve(c.Database.Path) }

// BulkPath returns the resolved bulk file path.
func (c *Config) BulkPath() string { return c.Resolve(c.Bulk.Path) }

// TempPath returns the resolved temp directory.
func (c *Config) TempPath() string { return c.Resolve(c.TempDir) }

// LogPath returns the resolved log file path, or "" when file logging is off.
func (c *Config) LogPath() string { return c.Resolve(c.Log.File) }

// GetPollTimeout returns the Telegram long-poll timeout.
func (c *Config) GetPollTimeout() time.Duration {
	return parseDuration(c.Telegram.PollTimeout, 10*time.Second)
}

// GetRetryDelay returns the pause after a failed Telegram poll.
func (c *Config) GetRetryDelay() time.Duration {
	return parseDuration(c.Telegram.RetryDelay, 10*time.Second)
}

// GetAPITimeout returns how long the API waits for a reply.
func (c *Config) GetAPITimeout() time.Duration {
	return parseDuration(c.API.Timeout, 30*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Redacted returns a copy safe to print: secrets are masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Telegram.AllowedIDs = append([]int64(nil), c.Telegram.AllowedIDs...)
	out.Telegram.AdminIDs = append([]int64(nil), c.Telegram.AdminIDs...)
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	out.Telegram.Token = mask(c.Telegram.Token)
	out.Database.DSN = mask(c.Database.DSN)
	out.Archive.SecretAccessKey = mask(c.Archive.SecretAccessKey)
	return &out
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
