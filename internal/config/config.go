// Package config manages application configuration.
//
// It is the only place that reads the process environment. Everything
// downstream receives a resolved *Config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Platforms lists the platforms to publish to (empty = every platform with credentials)
	Platforms []string `json:"enabled_platforms"`
	// MaxWorkers bounds concurrent platform uploads
	MaxWorkers int `json:"max_workers"`
	// ProbeMedia runs ffprobe on the file before uploading when available
	ProbeMedia bool `json:"probe_media"`

	// Retry settings
	MaxRetries        int           `json:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxJitter         time.Duration `json:"max_jitter"`

	// RequestTimeout bounds a single API call attempt
	RequestTimeout time.Duration `json:"request_timeout"`
	// UploadTimeout bounds a single transfer of video bytes
	UploadTimeout time.Duration `json:"upload_timeout"`
	// ChunkSize is the resumable upload chunk size in bytes
	ChunkSize int64 `json:"chunk_size"`

	// ReelProcessingTimeout and ReelPollInterval govern reel container polling
	ReelProcessingTimeout time.Duration `json:"reel_processing_timeout"`
	ReelPollInterval      time.Duration `json:"reel_poll_interval"`
	// TweetProcessingTimeout, TweetPollInterval and MaxProcessingPolls govern media status polling
	TweetProcessingTimeout time.Duration `json:"tweet_processing_timeout"`
	TweetPollInterval      time.Duration `json:"tweet_poll_interval"`
	MaxProcessingPolls     int           `json:"max_processing_polls"`

	// Redirect URIs registered with each platform for interactive authorization
	GoogleRedirectURI   string `json:"google_redirect_uri"`
	TikTokRedirectURI   string `json:"tiktok_redirect_uri"`
	FacebookRedirectURI string `json:"facebook_redirect_uri"`

	// Credentials never come from the config file.
	Credentials Credentials `json:"-"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxWorkers:             4,
		ProbeMedia:             true,
		MaxRetries:             3,
		InitialBackoff:         1 * time.Second,
		MaxBackoff:             60 * time.Second,
		BackoffMultiplier:      2.0,
		MaxJitter:              1 * time.Second,
		RequestTimeout:         30 * time.Second,
		UploadTimeout:          10 * time.Minute,
		ChunkSize:              8 << 20,
		ReelProcessingTimeout:  120 * time.Second,
		ReelPollInterval:       5 * time.Second,
		TweetProcessingTimeout: 300 * time.Second,
		TweetPollInterval:      5 * time.Second,
		MaxProcessingPolls:     30,
		GoogleRedirectURI:      "http://localhost:8085/",
		TikTokRedirectURI:      "http://127.0.0.1:80/callback/",
		FacebookRedirectURI:    "https://localhost/",
	}
}

// Load builds the configuration: defaults, then the first config file found,
// then environment variables (highest priority). A .env file in the working
// directory is loaded into the environment first if present.
// When paths are given they replace the default search locations.
func Load(paths ...string) (*Config, error) {
	// Existing environment variables win over .env entries.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if len(paths) == 0 {
		paths = defaultPaths()
	}
	if err := cfg.loadFromFile(paths); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	cfg.Credentials = LoadCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultPaths() []string {
	paths := []string{"clipcast.json"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "clipcast", "clipcast.json"))
	}
	return paths
}

// loadFromFile loads the first existing file of paths.
func (c *Config) loadFromFile(paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with CLIPCAST_* environment variables.
// Malformed values are errors rather than silently ignored.
func (c *Config) loadFromEnv() error {
	ints := map[string]*int{
		"CLIPCAST_MAX_WORKERS":          &c.MaxWorkers,
		"CLIPCAST_MAX_RETRIES":          &c.MaxRetries,
		"CLIPCAST_MAX_PROCESSING_POLLS": &c.MaxProcessingPolls,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"CLIPCAST_INITIAL_BACKOFF":          &c.InitialBackoff,
		"CLIPCAST_MAX_BACKOFF":              &c.MaxBackoff,
		"CLIPCAST_MAX_JITTER":               &c.MaxJitter,
		"CLIPCAST_REQUEST_TIMEOUT":          &c.RequestTimeout,
		"CLIPCAST_UPLOAD_TIMEOUT":           &c.UploadTimeout,
		"CLIPCAST_REEL_PROCESSING_TIMEOUT":  &c.ReelProcessingTimeout,
		"CLIPCAST_REEL_POLL_INTERVAL":       &c.ReelPollInterval,
		"CLIPCAST_TWEET_PROCESSING_TIMEOUT": &c.TweetProcessingTimeout,
		"CLIPCAST_TWEET_POLL_INTERVAL":      &c.TweetPollInterval,
	}
	for name, dst := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("CLIPCAST_BACKOFF_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CLIPCAST_BACKOFF_MULTIPLIER: %w", err)
		}
		c.BackoffMultiplier = f
	}
	if v := os.Getenv("CLIPCAST_CHUNK_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CLIPCAST_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = n
	}
	if v := os.Getenv("CLIPCAST_PROBE_MEDIA"); v != "" {
		c.ProbeMedia = v == "true" || v == "1"
	}
	if v := os.Getenv("CLIPCAST_PLATFORMS"); v != "" {
		c.Platforms = SplitList(v)
	}

	strs := map[string]*string{
		"CLIPCAST_GOOGLE_REDIRECT_URI":   &c.GoogleRedirectURI,
		"CLIPCAST_TIKTOK_REDIRECT_URI":   &c.TikTokRedirectURI,
		"CLIPCAST_FACEBOOK_REDIRECT_URI": &c.FacebookRedirectURI,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks and lowercasing.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	if c.MaxJitter < 0 {
		return fmt.Errorf("max_jitter must be non-negative")
	}
	if c.RequestTimeout <= 0 || c.UploadTimeout <= 0 {
		return fmt.Errorf("request_timeout and upload_timeout must be positive")
	}
	// Resumable upload chunks must be multiples of 256 KiB.
	if c.ChunkSize <= 0 || c.ChunkSize%(256<<10) != 0 {
		return fmt.Errorf("chunk_size must be a positive multiple of 262144")
	}
	if c.ReelProcessingTimeout <= 0 || c.TweetProcessingTimeout <= 0 {
		return fmt.Errorf("processing timeouts must be positive")
	}
	if c.ReelPollInterval <= 0 || c.TweetPollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.MaxProcessingPolls < 1 {
		return fmt.Errorf("max_processing_polls must be at least 1")
	}
	return nil
}
