package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ATLAS_LOG_LEVEL.
const EnvPrefix = "ATLAS"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations and falls back to defaults when no file exists.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  EnvPrefix,
		v:          viper.New(),
	}
}

// Viper exposes the underlying instance so commands can bind flags to keys.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFile returns the file that was read, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load reads configuration from defaults, file and environment, in that order
// of increasing precedence.
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v, DefaultConfig())

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.loadFile(); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	// Validate final config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadFile reads the explicit path, or the first default location present.
func (l *Loader) loadFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		return l.v.ReadInConfig()
	}

	for _, path := range l.defaultPaths() {
		if _, err := os.Stat(path); err == nil {
			l.v.SetConfigFile(path)
			if err := l.v.ReadInConfig(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		}
	}

	return nil
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"atlas.json",
		"atlas.yaml",
		".atlas.json",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "atlas", "config.json"),
			filepath.Join(homeDir, ".config", "atlas", "config.yaml"),
		)
	}

	return paths
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout", cfg.API.Timeout.String())
	v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.remote", cfg.API.Remote)
	v.SetDefault("api.mock_latency", cfg.API.MockLatency.String())

	v.SetDefault("auth.session_timeout", cfg.Auth.SessionTimeout.String())
	v.SetDefault("auth.min_password_length", cfg.Auth.MinPasswordLength)
	v.SetDefault("auth.totp_secret", cfg.Auth.TOTPSecret)
	v.SetDefault("auth.passphrase", cfg.Auth.Passphrase)

	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.backend", cfg.Storage.Backend)

	v.SetDefault("crypto.iterations", cfg.Crypto.Iterations)
	v.SetDefault("crypto.normalize_passwords", cfg.Crypto.NormalizePasswords)

	v.SetDefault("notify.duration", cfg.Notify.Duration.String())
	v.SetDefault("notify.buffer", cfg.Notify.Buffer)
	v.SetDefault("notify.stream", cfg.Notify.Stream)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)

	v.SetDefault("analytics.enabled", cfg.Analytics.Enabled)
	v.SetDefault("analytics.sample_rate", cfg.Analytics.SampleRate)
	v.SetDefault("analytics.app_id", cfg.Analytics.AppID)
	v.SetDefault("analytics.environment", cfg.Analytics.Environment)
}

// SaveExample writes an example config file. The format follows the
// extension (json, yaml or toml).
func SaveExample(path string) error {
	if path == "" {
		return errors.New("path is required")
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("chmod file: %w", err)
	}

	return nil
}
