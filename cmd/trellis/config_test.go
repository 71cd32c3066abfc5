package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/trellis/auth"
)

// clearEnv blanks every TRELLIS_* variable for the test, so ambient
// shell configuration cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRELLIS_BASE_URL", "TRELLIS_CLIENT_ID", "TRELLIS_CLIENT_SECRET",
		"TRELLIS_TOKEN_URL", "TRELLIS_REFRESH_TOKEN", "TRELLIS_ACCESS_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
base_url: https://api.example.test/v1
auth:
  client_id: cid-1
  refresh_token: rt-1
queue:
  max_concurrency: 5
  batch_delay_ms: 80
  requests_per_second: 2.5
`)

	cfg, creds, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.BaseURL != "https://api.example.test/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.MaxConcurrency != 5 {
		t.Errorf("MaxConcurrency = %d, want 5", cfg.MaxConcurrency)
	}
	if cfg.BatchDelay != 80*time.Millisecond {
		t.Errorf("BatchDelay = %v, want 80ms", cfg.BatchDelay)
	}
	if cfg.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v, want 2.5", cfg.RequestsPerSecond)
	}
	if creds.ClientID != "cid-1" || creds.RefreshToken != "rt-1" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
base_url: https://file.example.test
auth:
  access_token: from-file
`)
	t.Setenv("TRELLIS_BASE_URL", "https://env.example.test")
	t.Setenv("TRELLIS_ACCESS_TOKEN", "from-env")

	cfg, creds, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.BaseURL != "https://env.example.test" {
		t.Errorf("BaseURL = %q, want the env value", cfg.BaseURL)
	}
	if creds.AccessToken != "from-env" {
		t.Errorf("AccessToken = %q, want the env value", creds.AccessToken)
	}
}

func TestLoadConfig_ExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("loadConfig() accepted a missing explicit config file")
	}
}

func TestLoadConfig_MalformedFileFails(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "base_url: [this is not\n")
	if _, _, err := loadConfig(path); err == nil {
		t.Error("loadConfig() accepted malformed YAML")
	}
}

func TestHasCredentials(t *testing.T) {
	if hasCredentials(auth.Config{}) {
		t.Error("empty credentials reported present")
	}
	if !hasCredentials(auth.Config{AccessToken: "x"}) {
		t.Error("access token not recognized")
	}
	if !hasCredentials(auth.Config{RefreshToken: "x"}) {
		t.Error("refresh token not recognized")
	}
}
