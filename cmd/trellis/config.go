package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xraph/trellis"
	"github.com/xraph/trellis/auth"
)

// fileConfig mirrors the config file. All fields are optional;
// anything unset falls back to library defaults.
type fileConfig struct {
	BaseURL string `yaml:"base_url"`

	Auth struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		TokenURL     string `yaml:"token_url"`
		RefreshToken string `yaml:"refresh_token"`
		AccessToken  string `yaml:"access_token"`
	} `yaml:"auth"`

	Queue struct {
		MaxConcurrency    int     `yaml:"max_concurrency"`
		BatchDelayMs      int     `yaml:"batch_delay_ms"`
		MaxBatchSize      int     `yaml:"max_batch_size"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		BurstSize         float64 `yaml:"burst_size"`
	} `yaml:"queue"`
}

// defaultConfigPath is ~/.config/trellis/config.yaml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "trellis", "config.yaml")
}

// loadConfig merges, lowest precedence first: the YAML config file, a
// local .env file, and real environment variables. A missing config
// file is fine; a malformed one is not.
func loadConfig(path string) (trellis.Config, auth.Config, error) {
	_ = godotenv.Load()

	var fc fileConfig

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return trellis.Config{}, auth.Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case explicit:
			return trellis.Config{}, auth.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := trellis.Config{
		BaseURL:           fc.BaseURL,
		MaxConcurrency:    fc.Queue.MaxConcurrency,
		BatchDelay:        time.Duration(fc.Queue.BatchDelayMs) * time.Millisecond,
		MaxBatchSize:      fc.Queue.MaxBatchSize,
		RequestsPerSecond: fc.Queue.RequestsPerSecond,
		BurstSize:         fc.Queue.BurstSize,
	}
	creds := auth.Config{
		ClientID:     fc.Auth.ClientID,
		ClientSecret: fc.Auth.ClientSecret,
		TokenURL:     fc.Auth.TokenURL,
		RefreshToken: fc.Auth.RefreshToken,
		AccessToken:  fc.Auth.AccessToken,
	}

	// Environment wins over the file.
	if v := os.Getenv("TRELLIS_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("TRELLIS_CLIENT_ID"); v != "" {
		creds.ClientID = v
	}
	if v := os.Getenv("TRELLIS_CLIENT_SECRET"); v != "" {
		creds.ClientSecret = v
	}
	if v := os.Getenv("TRELLIS_TOKEN_URL"); v != "" {
		creds.TokenURL = v
	}
	if v := os.Getenv("TRELLIS_REFRESH_TOKEN"); v != "" {
		creds.RefreshToken = v
	}
	if v := os.Getenv("TRELLIS_ACCESS_TOKEN"); v != "" {
		creds.AccessToken = v
	}

	return cfg, creds, nil
}

func hasCredentials(creds auth.Config) bool {
	return creds.RefreshToken != "" || creds.AccessToken != ""
}
