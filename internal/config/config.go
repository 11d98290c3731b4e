package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// expandTilde expands ~ or ~/ at the start of a path to the user's home directory
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Config holds all configuration for the sync agent
type Config struct {
	API    APIConfig    `yaml:"api"`
	Sync   SyncConfig   `yaml:"sync"`
	Notify NotifyConfig `yaml:"notify"`
}

// APIConfig holds remote API connection settings
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // Per-request timeout (default: 30)
	TokenFile      string `yaml:"token_file"`      // Bearer token path (default: <data_dir>/token)
}

// SyncConfig holds sync engine behavior settings
type SyncConfig struct {
	PageSize           int    `yaml:"page_size"`            // Records per delta page (default: 500)
	DataDir            string `yaml:"data_dir"`             // Local store + token location
	ProgressIntervalMS int    `yaml:"progress_interval_ms"` // Observer throttle (default: 500)
}

// NotifyConfig holds webhook notification settings for session outcomes
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Enabled    bool   `yaml:"enabled"`
}

// LoadOptions controls configuration loading behavior.
type LoadOptions struct {
	SuppressWarnings bool
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads configuration from a YAML file with options.
func LoadWithOptions(path string, opts LoadOptions) (*Config, error) {
	// Check file permissions before reading (warns if insecure)
	if warning := checkFilePermissions(path); warning != "" && !opts.SuppressWarnings {
		fmt.Fprint(os.Stderr, warning)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return LoadBytes(data)
}

// LoadBytes reads configuration from YAML bytes.
func LoadBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultDataDir returns the default data directory for local state storage.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".fieldsync")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

func (c *Config) applyDefaults() {
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 30
	}

	if c.Sync.PageSize == 0 {
		c.Sync.PageSize = 500
	}
	if c.Sync.ProgressIntervalMS == 0 {
		c.Sync.ProgressIntervalMS = 500
	}
	if c.Sync.DataDir == "" {
		home, _ := os.UserHomeDir()
		c.Sync.DataDir = filepath.Join(home, ".fieldsync")
	} else {
		c.Sync.DataDir = expandTilde(c.Sync.DataDir)
	}

	if c.API.TokenFile == "" {
		c.API.TokenFile = filepath.Join(c.Sync.DataDir, "token")
	} else {
		c.API.TokenFile = expandTilde(c.API.TokenFile)
	}
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("missing required field: api.base_url")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("invalid value for api.base_url: %q (must start with http:// or https://)", c.API.BaseURL)
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 5000 {
		return fmt.Errorf("invalid value for sync.page_size: %d (must be 1-5000)", c.Sync.PageSize)
	}
	if c.API.TimeoutSeconds < 1 {
		return fmt.Errorf("invalid value for api.timeout_seconds: %d", c.API.TimeoutSeconds)
	}
	if c.Notify.Enabled && c.Notify.WebhookURL == "" {
		return fmt.Errorf("missing required field: notify.webhook_url (notifications enabled)")
	}
	return nil
}

// Timeout returns the per-request API timeout as a Duration.
func (c *APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProgressInterval returns the observer throttle interval as a Duration.
func (c *SyncConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMS) * time.Millisecond
}

// ReadToken reads the bearer token from the configured token file.
// Returns an empty string if the file does not exist (not yet logged in).
func (c *APIConfig) ReadToken() (string, error) {
	data, err := os.ReadFile(c.TokenFile)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteToken stores the bearer token under the data dir with owner-only perms.
func (c *APIConfig) WriteToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(c.TokenFile), 0700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}
	if err := os.WriteFile(c.TokenFile, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}
