package config

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/fsutil"
)

const (
	passwordLength  = 24
	passwordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	defaultUsername = "admin"
)

// SecretsLoadStatus indicates how secrets were loaded.
type SecretsLoadStatus int

const (
	// SecretsLoaded means secrets were successfully loaded from file.
	SecretsLoaded SecretsLoadStatus = iota
	// SecretsMissing means the secrets file doesn't exist (safe to create).
	SecretsMissing
	// SecretsFallback means the file could not be read or parsed (unsafe to overwrite).
	SecretsFallback
)

// Secret is a string that masks its value when printed or logged.
type Secret string

// String returns a masked value for logging safety.
func (s Secret) String() string { return "[REDACTED]" }

// GoString returns a masked value for %#v formatting.
func (s Secret) GoString() string { return "[REDACTED]" }

// LogValue keeps the value out of slog output.
func (s Secret) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

// Value returns the actual secret value.
func (s Secret) Value() string { return string(s) }

// IsEmpty returns true if the secret is empty.
func (s Secret) IsEmpty() bool { return s == "" }

// Secrets holds the Discord webhook that receives raid summaries and the
// LAN basic-auth credentials.
// WARNING: json.Marshal exposes the values; never log the struct itself.
type Secrets struct {
	SchemaVersion     int    `json:"schema_version"`
	DiscordWebhookURL Secret `json:"discord_webhook_url"`
	BasicAuthUsername string `json:"basic_auth_username"`
	BasicAuthPassword Secret `json:"basic_auth_password"`
}

// DefaultSecrets returns empty secrets at the current schema version.
func DefaultSecrets() Secrets {
	return Secrets{SchemaVersion: CurrentSchemaVersion}
}

// LoadSecrets reads secrets from the data directory.
func LoadSecrets() (Secrets, SecretsLoadStatus, error) {
	path, err := SecretsPath()
	if err != nil {
		return DefaultSecrets(), SecretsFallback, err
	}

	return LoadSecretsFrom(path)
}

// LoadSecretsFrom reads secrets from path. The status tells the caller
// whether overwriting the file is safe.
func LoadSecretsFrom(path string) (Secrets, SecretsLoadStatus, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSecrets(), SecretsMissing, nil
	}
	if err != nil {
		slog.Warn("failed to read secrets file, using defaults", "error", err)
		return DefaultSecrets(), SecretsFallback, fmt.Errorf("read secrets: %w", err)
	}

	sec := DefaultSecrets()
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&sec); err != nil {
		slog.Warn("secrets file is corrupt, using defaults", "error", err)
		return DefaultSecrets(), SecretsFallback, fmt.Errorf("decode secrets: %w", err)
	}
	if sec.SchemaVersion != CurrentSchemaVersion {
		slog.Warn("secrets schema version mismatch, using defaults",
			"got", sec.SchemaVersion, "want", CurrentSchemaVersion)
		return DefaultSecrets(), SecretsFallback, fmt.Errorf("schema mismatch: got %d", sec.SchemaVersion)
	}

	return sec, SecretsLoaded, nil
}

// SaveSecretsTo writes secrets to path atomically.
func SaveSecretsTo(sec Secrets, path string) error {
	sec.SchemaVersion = CurrentSchemaVersion
	return fsutil.WriteJSONAtomic(path, sec)
}

// GeneratePassword generates a cryptographically secure random password.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("generate password: length must be positive")
	}
	b := make([]byte, length)
	n := big.NewInt(int64(len(passwordCharset)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = passwordCharset[idx.Int64()]
	}
	return string(b), nil
}

// EnsureLanAuth fills in basic-auth credentials when LAN mode is enabled.
// generatedPassword is non-empty only when a new password was created.
func EnsureLanAuth(s *Secrets, lanEnabled bool) (updated bool, generatedPassword string, err error) {
	if !lanEnabled {
		return false, "", nil
	}

	if s.BasicAuthUsername == "" {
		s.BasicAuthUsername = defaultUsername
		updated = true
	}
	if s.BasicAuthPassword.IsEmpty() {
		pw, err := GeneratePassword(passwordLength)
		if err != nil {
			return false, "", err
		}
		s.BasicAuthPassword = Secret(pw)
		generatedPassword = pw
		updated = true
	}

	return updated, generatedPassword, nil
}
