package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/castleatlas/atlas/internal/config"
	"github.com/castleatlas/atlas/internal/events"
)

// Transport is the JSON request surface the services talk to.
type Transport interface {
	GetJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error)
	PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error)
	PutJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error)
	DeleteJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error)

	// Authentication
	SetToken(token string)
	GetToken() string

	// Lifecycle
	Close() error
}

// DefaultTransport combines the HTTP client with the notification stream.
type DefaultTransport struct {
	*HTTPClient

	mu     sync.Mutex
	stream *NotificationStream
	logger *events.Logger
}

// NewTransport creates a transport instance.
func NewTransport(cfg *config.APIConfig, logger *events.Logger, opts ...Option) *DefaultTransport {
	return &DefaultTransport{
		HTTPClient: NewHTTPClient(cfg, logger, opts...),
		logger:     logger,
	}
}

// StreamNotifications connects the notification websocket and forwards every
// message to bus. A previous stream is closed first.
func (t *DefaultTransport) StreamNotifications(ctx context.Context, bus *events.Bus) (*NotificationStream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream != nil {
		_ = t.stream.Close()
		t.stream = nil
	}

	stream := NewNotificationStream(t.baseURL, t.GetToken(), bus, t.logger)
	if err := stream.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect notifications: %w", err)
	}

	// Monitor errors in background
	go func() {
		<-stream.Done()
		if err := stream.Err(); err != nil {
			t.logger.WithError(err).Warn("Notification stream ended")
		}
	}()

	t.stream = stream
	return stream, nil
}

// Close closes the stream and idle HTTP connections.
func (t *DefaultTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.stream != nil {
		err = t.stream.Close()
		t.stream = nil
	}
	return errors.Join(err, t.HTTPClient.Close())
}
