package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/fsutil"
)

// CurrentSchemaVersion is the current config schema version.
const CurrentSchemaVersion = 1

// EnvPrefix prefixes every environment override, e.g. RAIDLOG_PORT.
// Priority: Environment > Config File > Default
const EnvPrefix = "RAIDLOG_"

// Config holds non-sensitive application configuration.
type Config struct {
	SchemaVersion int  `json:"schema_version"`
	Port          int  `json:"port" env:"PORT"`
	LanEnabled    bool `json:"lan_enabled" env:"LAN_ENABLED"`

	// RecordsDir holds one history file per account. Empty means <data dir>/records.
	RecordsDir string `json:"records_dir" env:"RECORDS_DIR"`
	// ProfilesDir is the host's profile registry, one <session>.json per account.
	ProfilesDir string `json:"profiles_dir" env:"PROFILES_DIR"`
	// DatabaseDir optionally holds items.json / handbook.json / offers.json
	// dumps imported into the market store at startup.
	DatabaseDir string `json:"database_dir" env:"DATABASE_DIR"`

	// PriceRefreshMs is the minimum age in milliseconds before a cached
	// template price is recomputed.
	PriceRefreshMs int64 `json:"price_refresh_ms" env:"PRICE_REFRESH_MS"`

	// AutoUnloadUnusedLanguages is read by the host's text layer; the record
	// core only carries it.
	AutoUnloadUnusedLanguages bool `json:"auto_unload_unused_languages" env:"AUTO_UNLOAD_LANGUAGES"`

	DiscordBatchSec  int  `json:"discord_batch_sec" env:"DISCORD_BATCH_SEC"`
	NotifyOnSurvived bool `json:"notify_on_survived" env:"NOTIFY_ON_SURVIVED"`
	NotifyOnDeath    bool `json:"notify_on_death" env:"NOTIFY_ON_DEATH"`

	Log LogConfig `json:"log" envPrefix:"LOG_"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	Level      string `json:"level" env:"LEVEL"`
	Dir        string `json:"dir" env:"DIR"`
	MaxSizeMB  int    `json:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `json:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `json:"compress" env:"COMPRESS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SchemaVersion:    CurrentSchemaVersion,
		Port:             8080,
		LanEnabled:       false,
		RecordsDir:       "", // <data dir>/records
		ProfilesDir:      "user/profiles",
		DatabaseDir:      "",
		PriceRefreshMs:   5 * 60 * 1000,
		DiscordBatchSec:  3,
		NotifyOnSurvived: true,
		NotifyOnDeath:    true,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// PriceRefreshInterval returns PriceRefreshMs as a duration.
func (c Config) PriceRefreshInterval() time.Duration {
	return time.Duration(c.PriceRefreshMs) * time.Millisecond
}

// LoadConfig reads config from the data directory. If the file doesn't
// exist or is corrupt, it returns DefaultConfig with a warning logged.
func LoadConfig() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	return LoadConfigFrom(path)
}

// LoadConfigFrom reads config from the specified path.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		slog.Warn("failed to read config file, using defaults", "path", path, "error", err)
		return cfg, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		slog.Warn("config file is corrupt, using defaults", "path", path, "error", err)
		return DefaultConfig(), nil
	}

	if cfg.SchemaVersion != CurrentSchemaVersion {
		slog.Warn("config schema version mismatch, using defaults",
			"got", cfg.SchemaVersion, "want", CurrentSchemaVersion)
		return DefaultConfig(), nil
	}

	return normalizeConfig(cfg), nil
}

// normalizeConfig validates and normalizes config values.
func normalizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.SchemaVersion = CurrentSchemaVersion

	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaults.Port
	}
	if cfg.PriceRefreshMs < 0 {
		cfg.PriceRefreshMs = defaults.PriceRefreshMs
	}
	if cfg.DiscordBatchSec < 0 {
		cfg.DiscordBatchSec = defaults.DiscordBatchSec
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = defaults.Log.MaxAgeDays
	}

	return cfg
}

// SaveConfig writes config to the data directory atomically.
func SaveConfig(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	return SaveConfigTo(cfg, path)
}

// SaveConfigTo writes config to the specified path atomically.
func SaveConfigTo(cfg Config, path string) error {
	cfg.SchemaVersion = CurrentSchemaVersion

	return fsutil.WriteJSONAtomic(path, cfg)
}

// ApplyEnvOverrides applies RAIDLOG_* environment variables on top of cfg.
// A malformed variable leaves cfg untouched and is reported as an error.
func ApplyEnvOverrides(cfg Config) (Config, error) {
	return applyEnv(cfg, nil)
}

func applyEnv(cfg Config, environ map[string]string) (Config, error) {
	out := cfg
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&out, opts); err != nil {
		return cfg, err
	}
	return normalizeConfig(out), nil
}
