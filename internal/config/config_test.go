package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castleatlas/atlas/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "http://localhost:3000/api", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTimeout)
	assert.Equal(t, 8, cfg.Auth.MinPasswordLength)
	assert.Equal(t, 100000, cfg.Crypto.Iterations)
	assert.Equal(t, 5*time.Second, cfg.Notify.Duration)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.API.Remote)
	assert.True(t, cfg.Analytics.Enabled)
	assert.Equal(t, 100.0, cfg.Analytics.SampleRate)
	assert.Equal(t, filepath.Join(".atlas", "passphrase"), cfg.PassphrasePath())
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr string
	}{
		{
			name:    "valid config",
			modify:  func(c *config.Config) {},
			wantErr: "",
		},
		{
			name: "missing base URL",
			modify: func(c *config.Config) {
				c.API.BaseURL = ""
			},
			wantErr: "api.base_url is required",
		},
		{
			name: "invalid log level",
			modify: func(c *config.Config) {
				c.Log.Level = "invalid"
			},
			wantErr: "invalid log level",
		},
		{
			name: "negative timeout",
			modify: func(c *config.Config) {
				c.API.Timeout = -1
			},
			wantErr: "api.timeout must be positive",
		},
		{
			name: "weak iterations",
			modify: func(c *config.Config) {
				c.Crypto.Iterations = 1000
			},
			wantErr: "crypto.iterations must be at least 100000",
		},
		{
			name: "sample rate above 100",
			modify: func(c *config.Config) {
				c.Analytics.SampleRate = 150
			},
			wantErr: "analytics.sample_rate must be between 0 and 100",
		},
		{
			name: "unknown backend",
			modify: func(c *config.Config) {
				c.Storage.Backend = "redis"
			},
			wantErr: "invalid storage backend",
		},
		{
			name: "zero session timeout",
			modify: func(c *config.Config) {
				c.Auth.SessionTimeout = 0
			},
			wantErr: "auth.session_timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoaderEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ATLAS_API_BASE_URL", "https://test.example.com")
	t.Setenv("ATLAS_API_TIMEOUT", "45s")
	t.Setenv("ATLAS_LOG_LEVEL", "DEBUG")
	t.Setenv("ATLAS_CRYPTO_ITERATIONS", "200000")
	t.Setenv("ATLAS_API_REMOTE", "true")

	loader := config.NewLoader("")
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "https://test.example.com", cfg.API.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 200000, cfg.Crypto.Iterations)
	assert.True(t, cfg.API.Remote)
}

func TestLoaderFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.json")

	configJSON := `{
		"api": {
			"base_url": "https://file.example.com"
		},
		"auth": {
			"session_timeout": "2h"
		},
		"log": {
			"level": "warn",
			"format": "json"
		}
	}`

	err := os.WriteFile(configPath, []byte(configJSON), 0644)
	require.NoError(t, err)

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.API.BaseURL)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, configPath, loader.ConfigFile())

	// Unset keys keep their defaults
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
}

func TestLoaderEnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "atlas.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log:\n  level: warn\n"), 0600))
	t.Setenv("ATLAS_LOG_LEVEL", "error")

	cfg, err := config.NewLoader(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoaderRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"log":{"level":"loud"}}`), 0600))

	_, err := config.NewLoader(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := config.NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
	assert.Error(t, err)
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.json")
	require.NoError(t, config.SaveExample(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().API.BaseURL, cfg.API.BaseURL)
	assert.Equal(t, config.DefaultConfig().Notify.Duration, cfg.Notify.Duration)
}

func TestConfigEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(tmpDir, "data")
	cfg.Log.File = filepath.Join(tmpDir, "logs", "app.log")

	err := cfg.EnsureDirectories()
	require.NoError(t, err)

	assert.DirExists(t, cfg.Storage.DataDir)
	assert.DirExists(t, filepath.Dir(cfg.Log.File))
}

func TestSessionPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = "/data"

	assert.Equal(t, filepath.Join("/data", "session.db"), cfg.SessionPath())

	cfg.Storage.Backend = "json"
	assert.Equal(t, filepath.Join("/data", "session"), cfg.SessionPath())
}
