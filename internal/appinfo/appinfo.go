// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "Raidlog Companion"

	// DirName is the directory name used for storing application data.
	// Location: %LOCALAPPDATA%/raidlog/ (Windows) or ~/.config/raidlog/ (other)
	DirName = "raidlog"

	// MutexName is the Windows mutex name for single instance control.
	// "Local\" prefix scopes the mutex to the current user session.
	MutexName = "Local\\raidlog-companion"

	// LockFileName is the lock file created inside the records directory.
	LockFileName = "raidlog.lock"

	// ConfigFileName is the configuration file name.
	ConfigFileName = "config.json"

	// SecretsFileName is the secrets file name.
	SecretsFileName = "secrets.json"

	// DatabaseFileName is the SQLite market database file name.
	DatabaseFileName = "market.sqlite"

	// RecordsDirName is the default directory holding per-account record files.
	RecordsDirName = "records"

	// LogFileName is the rotating log file name.
	LogFileName = "raidlog.log"
)
