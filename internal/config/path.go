// Package config provides configuration management for Raidlog Companion.
//
// Everything the companion owns lives under one data directory:
//
//	<data dir>/config.json      settings (see Config)
//	<data dir>/secrets.json     LAN password and Discord webhook
//	<data dir>/market.sqlite    item templates and flea offers
//	<data dir>/records/         one <account>.json history per account
//	<data dir>/raidlog.log      rotating log
//
// The raid profiles themselves belong to the host server and are only read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/graaaaa/raidlog-companion/internal/appinfo"
)

// DataDirEnv relocates the whole data directory, for portable installs
// that keep raid history next to the server.
const DataDirEnv = EnvPrefix + "DATA_DIR"

// DataDir returns the directory holding config, secrets, the market
// database and raid records. RAIDLOG_DATA_DIR wins when set; otherwise
// %LOCALAPPDATA%/raidlog on Windows and <user config dir>/raidlog elsewhere.
func DataDir() (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", DataDirEnv, err)
		}
		return abs, nil
	}

	var base string
	if runtime.GOOS == "windows" {
		base = os.Getenv("LOCALAPPDATA")
	}
	if base == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("get user config dir: %w", err)
		}
		base = dir
	}
	return filepath.Join(base, appinfo.DirName), nil
}

// EnsureDataDir creates the data directory owner-only, since secrets.json
// lives inside it.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create raidlog data dir %q: %w", dir, err)
	}
	return dir, nil
}

func dataPath(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPath returns <data dir>/config.json.
func ConfigPath() (string, error) {
	return dataPath(appinfo.ConfigFileName)
}

// SecretsPath returns <data dir>/secrets.json.
func SecretsPath() (string, error) {
	return dataPath(appinfo.SecretsFileName)
}

// DatabasePath returns <data dir>/market.sqlite. The item dumps named by
// Config.DatabaseDir are imported into it, never opened in place.
func DatabasePath() (string, error) {
	return dataPath(appinfo.DatabaseFileName)
}

// ResolveRecordsDir returns the absolute directory of per-account history
// files: cfg.RecordsDir, or <data dir>/records when unset. The record
// store creates it.
func ResolveRecordsDir(cfg Config) (string, error) {
	if cfg.RecordsDir == "" {
		return dataPath(appinfo.RecordsDirName)
	}
	dir, err := filepath.Abs(cfg.RecordsDir)
	if err != nil {
		return "", fmt.Errorf("resolve records dir %q: %w", cfg.RecordsDir, err)
	}
	return dir, nil
}
