package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API configuration
	API APIConfig `json:"api" mapstructure:"api"`

	// Authentication and session policy
	Auth AuthConfig `json:"auth" mapstructure:"auth"`

	// Session storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Envelope encryption parameters
	Crypto CryptoConfig `json:"crypto" mapstructure:"crypto"`

	// User notifications
	Notify NotifyConfig `json:"notify" mapstructure:"notify"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`

	// Usage analytics
	Analytics AnalyticsConfig `json:"analytics" mapstructure:"analytics"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	UserAgent  string        `json:"user_agent" mapstructure:"user_agent"`

	// Remote selects the HTTP backend. When false the in-process mock is used.
	Remote bool `json:"remote" mapstructure:"remote"`

	// MockLatency is the simulated round trip of the in-process backend.
	MockLatency time.Duration `json:"mock_latency" mapstructure:"mock_latency"`
}

// AuthConfig for authentication settings.
type AuthConfig struct {
	SessionTimeout    time.Duration `json:"session_timeout" mapstructure:"session_timeout"`
	MinPasswordLength int           `json:"min_password_length" mapstructure:"min_password_length"`

	// TOTP/MFA secret used to answer login challenges.
	TOTPSecret string `json:"totp_secret,omitempty" mapstructure:"totp_secret"`

	// Passphrase encrypts the persisted session. When empty a random one is
	// generated and kept in PassphrasePath.
	Passphrase string `json:"passphrase,omitempty" mapstructure:"passphrase"`
}

// StorageConfig for local session persistence.
type StorageConfig struct {
	DataDir string `json:"data_dir" mapstructure:"data_dir"` // Base directory for all data
	Backend string `json:"backend" mapstructure:"backend"`   // sqlite, json, memory
}

// CryptoConfig for the envelope utility.
type CryptoConfig struct {
	Iterations         int  `json:"iterations" mapstructure:"iterations"`
	NormalizePasswords bool `json:"normalize_passwords" mapstructure:"normalize_passwords"`
}

// NotifyConfig for the notification bus.
type NotifyConfig struct {
	Duration time.Duration `json:"duration" mapstructure:"duration"` // How long a toast stays visible
	Buffer   int           `json:"buffer" mapstructure:"buffer"`     // Per-subscriber queue
	Stream   bool          `json:"stream" mapstructure:"stream"`     // Follow the server websocket
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
	Color  bool   `json:"color" mapstructure:"color"`   // Enable colored output
}

// AnalyticsConfig for usage events posted to the API.
type AnalyticsConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRate  float64 `json:"sample_rate" mapstructure:"sample_rate"` // Percentage of events sent
	AppID       string  `json:"app_id" mapstructure:"app_id"`
	Environment string  `json:"environment" mapstructure:"environment"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".atlas"

	return &Config{
		API: APIConfig{
			BaseURL:     "http://localhost:3000/api",
			Timeout:     30 * time.Second,
			MaxRetries:  3,
			UserAgent:   "castle-atlas-cli/1.0",
			MockLatency: time.Second,
		},
		Auth: AuthConfig{
			SessionTimeout:    time.Hour,
			MinPasswordLength: 8,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			Backend: "sqlite",
		},
		Crypto: CryptoConfig{
			Iterations: 100000,
		},
		Notify: NotifyConfig{
			Duration: 5 * time.Second,
			Buffer:   16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
		Analytics: AnalyticsConfig{
			Enabled:     true,
			SampleRate:  100,
			Environment: "production",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries cannot be negative")
	}

	if c.Auth.SessionTimeout <= 0 {
		return errors.New("auth.session_timeout must be positive")
	}

	if c.Auth.MinPasswordLength < 1 {
		return errors.New("auth.min_password_length must be positive")
	}

	if c.Crypto.Iterations < 100000 {
		return fmt.Errorf("crypto.iterations must be at least 100000, got %d", c.Crypto.Iterations)
	}

	if c.Notify.Buffer <= 0 {
		return errors.New("notify.buffer must be positive")
	}

	if c.Analytics.SampleRate < 0 || c.Analytics.SampleRate > 100 {
		return fmt.Errorf("analytics.sample_rate must be between 0 and 100, got %g", c.Analytics.SampleRate)
	}

	validBackends := map[string]bool{"sqlite": true, "json": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDir}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// PassphrasePath returns the file holding the generated session passphrase.
func (c *Config) PassphrasePath() string {
	return filepath.Join(c.Storage.DataDir, "passphrase")
}

// SessionPath returns the file backing the session store.
func (c *Config) SessionPath() string {
	return c.SessionPathFor(c.Storage.Backend)
}

// SessionPathFor returns where backend keeps the session under DataDir.
func (c *Config) SessionPathFor(backend string) string {
	switch backend {
	case "json":
		return filepath.Join(c.Storage.DataDir, "session")
	default:
		return filepath.Join(c.Storage.DataDir, "session.db")
	}
}
