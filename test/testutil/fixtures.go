package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/mockapi"
)

// Epoch is the default start time for fake clocks.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewTestLogger creates a logger that discards output.
func NewTestLogger() *events.Logger {
	return events.NewNopLogger()
}

// NewMockAPI starts an in-process API on clock with no latency.
func NewMockAPI(t *testing.T, clock *Clock, opts ...mockapi.Option) *mockapi.Server {
	t.Helper()

	opts = append([]mockapi.Option{mockapi.WithClock(clock.Now)}, opts...)
	server, err := mockapi.NewServer(opts...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = server.Close() })
	return server
}

// SeedCredentials returns the demo account's email and password.
func SeedCredentials() (email, password string) {
	return mockapi.SeedEmail, mockapi.SeedPassword
}
