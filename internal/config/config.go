// Package config provides configuration management for promptlib.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBridgePort is the HTTP port of the browser-extension bridge.
	DefaultBridgePort = 37877
	// DefaultDBDriver is the local database driver.
	DefaultDBDriver = "sqlite"
	// DefaultScorer is the fuzzy search strategy.
	DefaultScorer = "approx"
	// DefaultMigrationPolicy reassigns only non-UUID ids on sign-in.
	DefaultMigrationPolicy = "legacy"
)

// Config holds promptlib settings. JSON keys match the settings.json file;
// env tags allow the same keys to be overridden from the environment.
type Config struct {
	DBDriver          string        `json:"PROMPTLIB_DB_DRIVER" env:"PROMPTLIB_DB_DRIVER"`
	DBPath            string        `json:"PROMPTLIB_DB_PATH" env:"PROMPTLIB_DB_PATH"`
	DBDSN             string        `json:"PROMPTLIB_DB_DSN" env:"PROMPTLIB_DB_DSN"`
	TemplatesPath     string        `json:"PROMPTLIB_TEMPLATES_PATH" env:"PROMPTLIB_TEMPLATES_PATH"`
	SupabaseURL       string        `json:"PROMPTLIB_SUPABASE_URL" env:"PROMPTLIB_SUPABASE_URL"`
	SupabaseKey       string        `json:"PROMPTLIB_SUPABASE_KEY" env:"PROMPTLIB_SUPABASE_KEY"`
	UserID            string        `json:"PROMPTLIB_USER_ID" env:"PROMPTLIB_USER_ID"`
	Scorer            string        `json:"PROMPTLIB_SEARCH_SCORER" env:"PROMPTLIB_SEARCH_SCORER"`
	MigrationPolicy   string        `json:"PROMPTLIB_MIGRATION_POLICY" env:"PROMPTLIB_MIGRATION_POLICY"`
	SearchThreshold   float64       `json:"PROMPTLIB_SEARCH_THRESHOLD" env:"PROMPTLIB_SEARCH_THRESHOLD"`
	SyncTimeout       time.Duration `json:"-" env:"PROMPTLIB_SYNC_TIMEOUT"`
	OutboxInterval    time.Duration `json:"-" env:"PROMPTLIB_OUTBOX_INTERVAL"`
	SyncTimeoutSec    int           `json:"PROMPTLIB_SYNC_TIMEOUT_SEC"`
	OutboxIntervalSec int           `json:"PROMPTLIB_OUTBOX_INTERVAL_SEC"`
	OutboxMaxAttempts int           `json:"PROMPTLIB_OUTBOX_MAX_ATTEMPTS" env:"PROMPTLIB_OUTBOX_MAX_ATTEMPTS"`
	OutboxConcurrency int           `json:"PROMPTLIB_OUTBOX_CONCURRENCY" env:"PROMPTLIB_OUTBOX_CONCURRENCY"`
	BridgePort        int           `json:"PROMPTLIB_BRIDGE_PORT" env:"PROMPTLIB_BRIDGE_PORT"`
	MaxConns          int           `json:"PROMPTLIB_MAX_CONNS" env:"PROMPTLIB_MAX_CONNS"`
	BridgeToken       string        `json:"PROMPTLIB_BRIDGE_TOKEN" env:"PROMPTLIB_BRIDGE_TOKEN"`
	BridgeOrigins     []string      `json:"PROMPTLIB_BRIDGE_ORIGINS" env:"PROMPTLIB_BRIDGE_ORIGINS" envSeparator:","`
	BridgeEnabled     bool          `json:"PROMPTLIB_BRIDGE_ENABLED" env:"PROMPTLIB_BRIDGE_ENABLED"`
	WatchDB           bool          `json:"PROMPTLIB_WATCH_DB" env:"PROMPTLIB_WATCH_DB"`
}

// DataDir returns the data directory, ~/.promptlib unless PROMPTLIB_DATA_DIR is set.
func DataDir() string {
	if dir := os.Getenv("PROMPTLIB_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".promptlib")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "promptlib.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// TemplatesPath returns the path of the optional user template catalog.
func TemplatesPath() string {
	return filepath.Join(DataDir(), "templates.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBDriver:          DefaultDBDriver,
		DBPath:            DBPath(),
		TemplatesPath:     TemplatesPath(),
		Scorer:            DefaultScorer,
		MigrationPolicy:   DefaultMigrationPolicy,
		SearchThreshold:   0.3,
		SyncTimeout:       30 * time.Second,
		OutboxInterval:    5 * time.Second,
		SyncTimeoutSec:    30,
		OutboxIntervalSec: 5,
		OutboxMaxAttempts: 8,
		OutboxConcurrency: 4,
		BridgePort:        DefaultBridgePort,
		MaxConns:          4,
		BridgeEnabled:     true,
		WatchDB:           true,
	}
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and the settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads settings.json over the defaults, then applies environment overrides.
// A missing or malformed settings file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			log.Warn().Err(jsonErr).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
			cfg = Default()
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	if cfg.SyncTimeoutSec > 0 {
		cfg.SyncTimeout = time.Duration(cfg.SyncTimeoutSec) * time.Second
	}
	if cfg.OutboxIntervalSec > 0 {
		cfg.OutboxInterval = time.Duration(cfg.OutboxIntervalSec) * time.Second
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

// RemoteEnabled reports whether Supabase credentials are configured.
func (c *Config) RemoteEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	if c.DBDriver == "" {
		c.DBDriver = DefaultDBDriver
	}
	if c.DBPath == "" {
		c.DBPath = DBPath()
	}
	if c.TemplatesPath == "" {
		c.TemplatesPath = TemplatesPath()
	}
	if c.Scorer == "" {
		c.Scorer = DefaultScorer
	}
	if c.MigrationPolicy == "" {
		c.MigrationPolicy = DefaultMigrationPolicy
	}
	if c.SearchThreshold <= 0 || c.SearchThreshold >= 1 {
		c.SearchThreshold = 0.3
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.OutboxConcurrency <= 0 {
		c.OutboxConcurrency = 1
	}
	if c.OutboxMaxAttempts <= 0 {
		c.OutboxMaxAttempts = 8
	}
}
