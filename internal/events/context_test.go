package events_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/castleatlas/atlas/internal/events"
)

func TestFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return default logger when none in context
	logger := events.FromContext(ctx)
	assert.NotNil(t, logger)
}

func TestWithLogger(t *testing.T) {
	ctx := context.Background()
	logger := events.NewNopLogger()

	ctx = events.WithLogger(ctx, logger)
	retrieved := events.FromContext(ctx)

	assert.Same(t, logger, retrieved)
}

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	requestID := "req-123"

	ctx = events.WithRequestID(ctx, requestID)
	retrieved := events.GetRequestID(ctx)

	assert.Equal(t, requestID, retrieved)

	// Should also add to logger fields
	logger := events.FromContext(ctx)
	assert.NotNil(t, logger)
}

func TestWithRequestIDGenerates(t *testing.T) {
	ctx := events.WithRequestID(context.Background(), "")

	id := events.GetRequestID(ctx)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestWithUserID(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "json", &buf))
	ctx = events.WithUserID(ctx, "user-456")

	events.FromContext(ctx).Info("signed in")
	assert.Contains(t, buf.String(), `"user_id":"user-456"`)
}

func TestGetRequestIDEmpty(t *testing.T) {
	assert.Empty(t, events.GetRequestID(context.Background()))
}

func TestSetDefault(t *testing.T) {
	previous := events.FromContext(context.Background())
	t.Cleanup(func() { events.SetDefault(previous) })

	customLogger := events.NewNopLogger()
	events.SetDefault(customLogger)

	retrieved := events.FromContext(context.Background())
	assert.Same(t, customLogger, retrieved)
}
