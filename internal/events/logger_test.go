package events_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castleatlas/atlas/internal/config"
	"github.com/castleatlas/atlas/internal/events"
)

func TestNewLogger(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "debug",
		Format: "json",
		File:   "",
	}

	logger, err := events.NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, events.DebugLevel, logger.Level())
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.log")
	logger, err := events.NewLogger(&config.LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, logger.Sync())
	assert.FileExists(t, path)
}

func TestLoggerCloseReleasesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.log")
	logger, err := events.NewLogger(&config.LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.WithField("component", "test").Info("before close")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "before close")

	// The file can be removed and recreated once released.
	require.NoError(t, os.Remove(path))
	again, err := events.NewLogger(&config.LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestLoggerCloseWithoutFile(t *testing.T) {
	logger, err := events.NewLogger(&config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.WithField("k", "v").Close())

	var nilLogger *events.Logger
	assert.NoError(t, nilLogger.Close())
}

func TestLoggerWithField(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	logger.WithField("test_key", "test_value").Info("test message")

	output := buf.String()
	assert.Contains(t, output, `"test_key":"test_value"`)
	assert.Contains(t, output, `"msg":"test message"`)
	assert.Contains(t, output, `"level":"info"`)
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	fields := map[string]interface{}{
		"skill":   "guitar",
		"user_id": "user-456",
	}

	logger.WithFields(fields).Info("multi-field test")

	output := buf.String()
	assert.Contains(t, output, `"skill":"guitar"`)
	assert.Contains(t, output, `"user_id":"user-456"`)
	assert.Contains(t, output, `"msg":"multi-field test"`)
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  events.LogLevel
		msgLevel  events.LogLevel
		shouldLog bool
	}{
		{"debug logger, debug message", events.DebugLevel, events.DebugLevel, true},
		{"debug logger, info message", events.DebugLevel, events.InfoLevel, true},
		{"info logger, debug message", events.InfoLevel, events.DebugLevel, false},
		{"info logger, info message", events.InfoLevel, events.InfoLevel, true},
		{"error logger, warn message", events.ErrorLevel, events.WarnLevel, false},
		{"error logger, error message", events.ErrorLevel, events.ErrorLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := events.NewTestLogger(tt.logLevel, "text", &buf)

			switch tt.msgLevel {
			case events.DebugLevel:
				logger.Debug("test debug")
			case events.InfoLevel:
				logger.Info("test info")
			case events.WarnLevel:
				logger.Warn("test warn")
			case events.ErrorLevel:
				logger.Error("test error")
			}

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "text", &buf)

	logger.WithField("key", "value").Info("test message")

	output := buf.String()
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, `"key": "value"`)
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	err := assert.AnError
	logger.WithError(err).Error("operation failed")

	output := buf.String()
	assert.Contains(t, output, `"error":"assert.AnError general error for testing"`)
	assert.Contains(t, output, `"msg":"operation failed"`)
	assert.Contains(t, output, `"level":"error"`)

	assert.Same(t, logger, logger.WithError(nil))
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	logger.WithFields(map[string]interface{}{
		"password":       "hunter2",
		"access_token":   "eyJhbGciOi",
		"Passphrase":     "open sesame",
		"stripe_api_key": "sk_live",
		"authorization":  "Bearer abc",
		"key":            "castle_atlas_user",
		"email":          "test@example.com",
	}).Info("login")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, events.Redacted, entry["password"])
	assert.Equal(t, events.Redacted, entry["access_token"])
	assert.Equal(t, events.Redacted, entry["Passphrase"])
	assert.Equal(t, events.Redacted, entry["stripe_api_key"])
	assert.Equal(t, events.Redacted, entry["authorization"])
	assert.Equal(t, "castle_atlas_user", entry["key"])
	assert.Equal(t, "test@example.com", entry["email"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestLogInjectionPrevention(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "text", &buf)

	logger.WithField("user", "bob\nINFO forged entry").Info("line one\nline two")

	output := strings.TrimRight(buf.String(), "\n")
	assert.NotContains(t, output, "\n")
	assert.Contains(t, output, `line one\nline two`)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *events.Logger

	assert.NotPanics(t, func() {
		logger.Info("message")
		logger.WithField("k", "v").Warn("message")
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, events.DebugLevel, events.ParseLevel("DEBUG"))
	assert.Equal(t, events.WarnLevel, events.ParseLevel("warn"))
	assert.Equal(t, events.ErrorLevel, events.ParseLevel("error"))
	assert.Equal(t, events.InfoLevel, events.ParseLevel("bogus"))
}
