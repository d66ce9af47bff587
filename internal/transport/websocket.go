package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castleatlas/atlas/internal/events"
)

// NotificationPath is appended to the API base URL to reach the stream.
const NotificationPath = "/ws/notifications"

// wireNotification is the JSON shape the server pushes. Duration is in
// milliseconds.
type wireNotification struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Duration int64  `json:"duration"`
}

// NotificationStream reads server-pushed notifications over a websocket and
// publishes them on a bus.
type NotificationStream struct {
	url    string
	token  string
	bus    *events.Bus
	logger *events.Logger

	// Connection state
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	err    error
	done   chan struct{}

	// Heartbeat
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewNotificationStream creates a stream for the API at baseURL.
func NewNotificationStream(baseURL, token string, bus *events.Bus, logger *events.Logger) *NotificationStream {
	return &NotificationStream{
		url:          streamURL(baseURL),
		token:        token,
		bus:          bus,
		logger:       logger.WithField("component", "notification_stream"),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
		pongTimeout:  10 * time.Second,
	}
}

// streamURL converts http(s) to ws(s) and appends NotificationPath.
func streamURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(u, "http") {
		u = "ws" + u[4:]
	}
	return u + NotificationPath
}

// URL returns the websocket endpoint.
func (s *NotificationStream) URL() string {
	return s.url
}

// Connect establishes the websocket connection and starts reading.
func (s *NotificationStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("stream closed")
	}
	if s.conn != nil {
		return errors.New("already connected")
	}

	s.logger.WithField("url", s.url).Info("Connecting to notification stream")

	headers := http.Header{}
	if s.token != "" {
		headers.Set("Authorization", "Bearer "+s.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, s.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connect failed: %w", err)
	}

	s.conn = conn

	go s.readLoop(conn)
	go s.pingLoop(conn)

	s.logger.Info("Notification stream connected")
	return nil
}

// Done is closed when the read loop exits.
func (s *NotificationStream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the stream, or nil after a clean close.
func (s *NotificationStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the websocket connection.
func (s *NotificationStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.conn == nil {
		close(s.done)
		return nil
	}

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return s.conn.Close()
}

func (s *NotificationStream) readLoop(conn *websocket.Conn) {
	defer close(s.done)

	_ = conn.SetReadDeadline(time.Now().Add(s.pongTimeout + s.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongTimeout + s.pingInterval))
	})

	for {
		var msg wireNotification
		if err := conn.ReadJSON(&msg); err != nil {
			s.finish(err)
			return
		}

		n := events.Notification{
			Level:    events.NotificationLevel(msg.Type),
			Title:    msg.Title,
			Message:  msg.Message,
			Duration: time.Duration(msg.Duration) * time.Millisecond,
		}

		s.logger.WithField("type", msg.Type).Debug("Received notification")

		if err := s.bus.Publish(n); err != nil {
			s.finish(err)
			return
		}
	}
}

// finish records why the read loop stopped. Normal closes and reads that
// fail after Close are not errors.
func (s *NotificationStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}

	s.logger.WithError(err).Error("Notification stream read error")
	s.err = err
}

// pingLoop sends periodic pings.
func (s *NotificationStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.pongTimeout)); err != nil {
				s.logger.WithError(err).Debug("Ping failed")
				return
			}
		case <-s.done:
			return
		}
	}
}
