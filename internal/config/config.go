// Package config loads the bot configuration from an optional YAML file, an
// optional .env file and the environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/labcodes/internal/db"
)

// ErrMissingToken is returned by Validate when no bot token is configured.
var ErrMissingToken = errors.New("telegram bot token not set (TELEGRAM_BOT_TOKEN)")

// Config is the complete bot configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Entry    EntryConfig    `yaml:"entry"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout"`
	Debug       bool   `yaml:"debug"`
}

// DatabaseConfig selects the record store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is the SQLite file path or the Postgres connection URL.
	DSN string `yaml:"dsn"`
}

// EntryConfig configures the entry workflow.
type EntryConfig struct {
	// PendingTTL is how long an unfinished entry is kept; "0" keeps it forever.
	PendingTTL string `yaml:"pending_ttl"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Path  string `yaml:"path"`
	Debug bool   `yaml:"debug"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "60s"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "labcodes.sqlite3"},
		Entry:    EntryConfig{PendingTTL: "30m"},
	}
}

// Load builds the configuration. A missing YAML file or .env file is not an
// error; path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("LABCODES_POLL_TIMEOUT"); v != "" {
		c.Telegram.PollTimeout = v
	}
	if v := os.Getenv("LABCODES_TELEGRAM_DEBUG"); v != "" {
		c.Telegram.Debug, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("LABCODES_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("LABCODES_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("LABCODES_PENDING_TTL"); v != "" {
		c.Entry.PendingTTL = v
	}
	if v := os.Getenv("LABCODES_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("LABCODES_LOG"); v != "" {
		c.Log.Path = v
	}
}

// Validate checks the configuration for startup-fatal problems.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}
	if _, err := db.ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn not set")
	}
	if _, err := parseDuration("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("entry.pending_ttl", c.Entry.PendingTTL); err != nil {
		return err
	}
	return nil
}

// GetPollTimeout returns the long-polling timeout.
func (c *Config) GetPollTimeout() time.Duration {
	d, _ := parseDuration("telegram.poll_timeout", c.Telegram.PollTimeout)
	return d
}

// GetPendingTTL returns the lifetime of unfinished entries, zero for none.
func (c *Config) GetPendingTTL() time.Duration {
	d, _ := parseDuration("entry.pending_ttl", c.Entry.PendingTTL)
	return d
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}
