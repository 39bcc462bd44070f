package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clipcast.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", cfg.MaxWorkers)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `{"max_workers": 2, "max_retries": 5, "enabled_platforms": ["youtube"]}`)

	t.Setenv("CLIPCAST_MAX_RETRIES", "1")
	t.Setenv("CLIPCAST_REQUEST_TIMEOUT", "45s")
	t.Setenv("CLIPCAST_PLATFORMS", "TikTok, twitter,,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxWorkers != 2 {
		t.Errorf("MaxWorkers = %d, want 2 from file", cfg.MaxWorkers)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1 from env", cfg.MaxRetries)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Errorf("RequestTimeout = %v, want 45s", cfg.RequestTimeout)
	}
	if strings.Join(cfg.Platforms, ",") != "tiktok,twitter" {
		t.Errorf("Platforms = %v", cfg.Platforms)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("CLIPCAST_MAX_WORKERS", "many")
	if _, err := Load(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatal("Load accepted a non-numeric CLIPCAST_MAX_WORKERS")
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"multiplier", func(c *Config) { c.BackoffMultiplier = 1 }},
		{"chunk alignment", func(c *Config) { c.ChunkSize = 1000 }},
		{"poll interval", func(c *Config) { c.ReelPollInterval = 0 }},
		{"max polls", func(c *Config) { c.MaxProcessingPolls = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() accepted %s", tt.name)
			}
		})
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")
	t.Setenv("GOOGLE_REFRESH_TOKEN", "")
	t.Setenv("TIKTOK_CLIENT_KEY", "tk")
	t.Setenv("TIKTOK_CLIENT_SECRET", "")

	creds := LoadCredentials()
	if err := creds.YouTube.Check(); err != nil {
		t.Errorf("YouTube.Check() = %v; refresh token is optional", err)
	}

	err := creds.TikTok.Check()
	var missing *MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("TikTok.Check() = %v, want MissingError", err)
	}
	if len(missing.Vars) != 1 || missing.Vars[0] != "TIKTOK_CLIENT_SECRET" {
		t.Errorf("missing = %v", missing.Vars)
	}
}

func TestTwitterRequiresAllFields(t *testing.T) {
	c := TwitterCredentials{APIKey: "k", APIKeySecret: "s", AccessToken: "a", AccessTokenSecret: "as"}
	err := c.Check()
	if err == nil || !strings.Contains(err.Error(), "TWITTER_BEARER_TOKEN") {
		t.Errorf("Check() = %v, want missing bearer token", err)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" YouTube ,, instagram")
	if strings.Join(got, "|") != "youtube|instagram" {
		t.Errorf("SplitList = %v", got)
	}
}
