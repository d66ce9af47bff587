package testutil

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/castleatlas/atlas/internal/config"
	"github.com/castleatlas/atlas/internal/events"
)

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"msg"`
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestTimeout provides timeout context for tests.
func TestTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return TestTimeout(30 * time.Second)
}

// TestConfigWithDir creates a configuration that runs against the in-process
// API with no latency and stores data under dataDir.
func TestConfigWithDir(dataDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = "https://api.test.com"
	cfg.API.MockLatency = 0
	cfg.Storage.DataDir = dataDir
	cfg.Auth.Passphrase = "test-passphrase"
	cfg.Log = config.LogConfig{
		Level:  "debug",
		Format: "json",
		File:   filepath.Join(dataDir, "atlas.log"),
	}
	return cfg
}

// WaitForCondition waits for a condition to be true with timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			t.Fatalf("Timeout waiting for condition: %s", message)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// Notifications collects everything published on a bus.
type Notifications struct {
	mu    sync.Mutex
	items []events.Notification
	done  chan struct{}
}

// CollectNotifications subscribes to bus until the test ends.
func CollectNotifications(t *testing.T, bus *events.Bus) *Notifications {
	t.Helper()

	ch, unsubscribe := bus.Subscribe(64)
	n := &Notifications{done: make(chan struct{})}

	go func() {
		defer close(n.done)
		for item := range ch {
			n.mu.Lock()
			n.items = append(n.items, item)
			n.mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		unsubscribe()
		<-n.done
	})
	return n
}

// All returns a copy of the collected notifications.
func (n *Notifications) All() []events.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]events.Notification, len(n.items))
	copy(out, n.items)
	return out
}

// Has reports whether a notification with level and message arrived.
func (n *Notifications) Has(level events.NotificationLevel, message string) bool {
	for _, item := range n.All() {
		if item.Level == level && item.Message == message {
			return true
		}
	}
	return false
}

// LogOutput captures JSON log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
	raw     strings.Builder
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Logger returns a debug-level JSON logger writing to lo.
func (lo *LogOutput) Logger() *events.Logger {
	return events.NewTestLogger(events.DebugLevel, "json", lo)
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	lo.mu.Lock()
	defer lo.mu.Unlock()

	lo.raw.Write(p)

	var entry LogEntry
	if err := json.Unmarshal(p, &entry); err == nil {
		lo.entries = append(lo.entries, entry)
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// String returns everything written so far.
func (lo *LogOutput) String() string {
	lo.mu.RLock()
	defer lo.mu.RUnlock()
	return lo.raw.String()
}

// HasLevel checks if any log entry has the specified level.
func (lo *LogOutput) HasLevel(level string) bool {
	for _, entry := range lo.Entries() {
		if entry.Level == level {
			return true
		}
	}
	return false
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	for _, entry := range lo.Entries() {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
