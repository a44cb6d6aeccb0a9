package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("schema version = %d, want %d", cfg.SchemaVersion, CurrentSchemaVersion)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.LanEnabled {
		t.Error("LAN should be disabled by default")
	}
	if cfg.ProfilesDir != "user/profiles" {
		t.Errorf("profiles dir = %q", cfg.ProfilesDir)
	}
	if got := cfg.PriceRefreshInterval(); got != 5*time.Minute {
		t.Errorf("price refresh = %v, want 5m", got)
	}
	if !cfg.NotifyOnSurvived || !cfg.NotifyOnDeath {
		t.Error("raid notifications should be on by default")
	}
}

func TestLoadConfigFrom(t *testing.T) {
	tests := []struct {
		name    string
		content string // empty means no file
		check   func(t *testing.T, cfg Config)
	}{
		{
			name: "missing file returns defaults",
			check: func(t *testing.T, cfg Config) {
				if cfg != DefaultConfig() {
					t.Errorf("got %+v, want defaults", cfg)
				}
			},
		},
		{
			name:    "corrupt file returns defaults",
			content: "{not json",
			check: func(t *testing.T, cfg Config) {
				if cfg != DefaultConfig() {
					t.Errorf("got %+v, want defaults", cfg)
				}
			},
		},
		{
			name:    "schema mismatch returns defaults",
			content: `{"schema_version": 99, "port": 9000}`,
			check: func(t *testing.T, cfg Config) {
				if cfg.Port != 8080 {
					t.Errorf("port = %d, want 8080", cfg.Port)
				}
			},
		},
		{
			name:    "invalid values are normalized",
			content: `{"schema_version": 1, "port": -1, "price_refresh_ms": -5, "log": {"max_size_mb": 0}}`,
			check: func(t *testing.T, cfg Config) {
				d := DefaultConfig()
				if cfg.Port != d.Port {
					t.Errorf("port = %d", cfg.Port)
				}
				if cfg.PriceRefreshMs != d.PriceRefreshMs {
					t.Errorf("price refresh = %d", cfg.PriceRefreshMs)
				}
				if cfg.Log.MaxSizeMB != d.Log.MaxSizeMB {
					t.Errorf("max size = %d", cfg.Log.MaxSizeMB)
				}
			},
		},
		{
			name:    "partial file keeps defaults for the rest",
			content: `{"schema_version": 1, "records_dir": "/srv/records"}`,
			check: func(t *testing.T, cfg Config) {
				if cfg.RecordsDir != "/srv/records" {
					t.Errorf("records dir = %q", cfg.RecordsDir)
				}
				if cfg.ProfilesDir != "user/profiles" {
					t.Errorf("profiles dir = %q", cfg.ProfilesDir)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
					t.Fatal(err)
				}
			}
			cfg, err := LoadConfigFrom(path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestSaveLoadConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := DefaultConfig()
	original.Port = 9090
	original.LanEnabled = true
	original.RecordsDir = "/data/records"
	original.PriceRefreshMs = 1000
	original.NotifyOnSurvived = false
	original.Log.Dir = "/var/log/raidlog"
	original.Log.Compress = true

	if err := SaveConfigTo(original, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != original {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, original)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg, err := applyEnv(DefaultConfig(), map[string]string{
		"RAIDLOG_PORT":             "9000",
		"RAIDLOG_LAN_ENABLED":      "true",
		"RAIDLOG_PRICE_REFRESH_MS": "1000",
		"RAIDLOG_NOTIFY_ON_DEATH":  "false",
		"RAIDLOG_LOG_DIR":          "/x",
		"RAIDLOG_LOG_LEVEL":        "debug",
		"PORT":                     "1", // unprefixed vars are ignored
	})
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Port)
	}
	if !cfg.LanEnabled {
		t.Error("LAN should be enabled")
	}
	if cfg.PriceRefreshInterval() != time.Second {
		t.Errorf("price refresh = %v", cfg.PriceRefreshInterval())
	}
	if cfg.NotifyOnDeath {
		t.Error("NotifyOnDeath should be false")
	}
	if cfg.Log.Dir != "/x" || cfg.Log.Level != "debug" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if !cfg.NotifyOnSurvived {
		t.Error("unset vars should keep the file value")
	}
}

func TestApplyEnv_MalformedKeepsConfig(t *testing.T) {
	in := DefaultConfig()
	in.Port = 7000

	out, err := applyEnv(in, map[string]string{"RAIDLOG_PORT": "not-a-number"})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if out != in {
		t.Errorf("config changed on error: %+v", out)
	}
}

func TestApplyEnv_OutOfRangeNormalized(t *testing.T) {
	out, err := applyEnv(DefaultConfig(), map[string]string{"RAIDLOG_PORT": "70000"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Port != 8080 {
		t.Errorf("port = %d, want default", out.Port)
	}
}

func TestResolveRecordsDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecordsDir = "relative/records"

	got, err := ResolveRecordsDir(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %q", got)
	}
	if filepath.Base(got) != "records" {
		t.Errorf("got %q", got)
	}
}

func TestDataDir_Override(t *testing.T) {
	root := t.TempDir()
	t.Setenv(DataDirEnv, root)

	dir, err := EnsureDataDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != root {
		t.Errorf("data dir = %q, want %q", dir, root)
	}

	for name, fn := range map[string]func() (string, error){
		"config.json":   ConfigPath,
		"secrets.json":  SecretsPath,
		"market.sqlite": DatabasePath,
	} {
		got, err := fn()
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(root, name); got != want {
			t.Errorf("%s path = %q, want %q", name, got, want)
		}
	}

	records, err := ResolveRecordsDir(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "records"); records != want {
		t.Errorf("records dir = %q, want %q", records, want)
	}
}

func TestSecret_Masking(t *testing.T) {
	secret := Secret("my-super-secret-password")

	for _, got := range []string{
		secret.String(),
		secret.GoString(),
		fmt.Sprintf("%s", secret),
		fmt.Sprintf("%v", secret),
		secret.LogValue().String(),
	} {
		if got != "[REDACTED]" {
			t.Errorf("got %q, want [REDACTED]", got)
		}
	}
	if secret.Value() != "my-super-secret-password" {
		t.Errorf("Value() = %q", secret.Value())
	}
	if !Secret("").IsEmpty() || secret.IsEmpty() {
		t.Error("IsEmpty mismatch")
	}
}

func TestSaveLoadSecrets_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	original := Secrets{
		SchemaVersion:     CurrentSchemaVersion,
		DiscordWebhookURL: Secret("https://discord.com/api/webhooks/xxx"),
		BasicAuthUsername: "admin",
		BasicAuthPassword: Secret("super-secret"),
	}
	if err := SaveSecretsTo(original, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, status, err := LoadSecretsFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if status != SecretsLoaded {
		t.Errorf("status = %v, want SecretsLoaded", status)
	}
	if loaded != original {
		t.Error("round trip mismatch")
	}
}

func TestLoadSecretsFrom_Status(t *testing.T) {
	dir := t.TempDir()

	_, status, err := LoadSecretsFrom(filepath.Join(dir, "missing.json"))
	if err != nil || status != SecretsMissing {
		t.Errorf("missing: status=%v err=%v", status, err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	_, status, err = LoadSecretsFrom(corrupt)
	if err == nil || status != SecretsFallback {
		t.Errorf("corrupt: status=%v err=%v", status, err)
	}
}

func TestEnsureLanAuth(t *testing.T) {
	var s Secrets
	updated, pw, err := EnsureLanAuth(&s, false)
	if err != nil || updated || pw != "" {
		t.Fatalf("LAN off should be a no-op: %v %q %v", updated, pw, err)
	}

	updated, pw, err = EnsureLanAuth(&s, true)
	if err != nil {
		t.Fatal(err)
	}
	if !updated || len(pw) != passwordLength {
		t.Errorf("updated=%v len(pw)=%d", updated, len(pw))
	}
	if s.BasicAuthUsername != defaultUsername || s.BasicAuthPassword.Value() != pw {
		t.Errorf("credentials not stored: %q", s.BasicAuthUsername)
	}

	updated, pw, _ = EnsureLanAuth(&s, true)
	if updated || pw != "" {
		t.Error("existing credentials should be kept")
	}
}
