package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/transport"
)

const (
	notificationPath = "/ws/notifications"
	watchBuffer      = 16
	maxBodySize      = 1 << 20
)

// Notification is what the notification socket sends. Duration is in
// milliseconds; zero leaves the receiver's default.
type Notification struct {
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message"`
	Duration int64  `json:"duration,omitempty"`
}

type watcher struct {
	userID string
	ch     chan Notification
}

// Watch returns the notifications pushed to userID until stop is called or
// the server closes.
func (s *Server) Watch(userID string) (<-chan Notification, func()) {
	ch := make(chan Notification, watchBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = &watcher{userID: userID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w.ch)
			}
		})
	}
}

// Watching reports how many watchers userID has.
func (s *Server) Watching(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, w := range s.watchers {
		if w.userID == userID {
			n++
		}
	}
	return n
}

// push delivers n to userID's watchers. Callers hold s.mu. Full watchers
// miss the notification.
func (s *Server) push(userID string, n Notification) {
	for _, w := range s.watchers {
		if w.userID != userID {
			continue
		}
		select {
		case w.ch <- n:
		default:
			s.logger.WithField("user_id", userID).Warn("Dropped notification for slow watcher")
		}
	}
}

// Handler serves the API over HTTP with the same routes, plus the
// notification websocket. Every response carries the caller's X-Request-ID,
// or a fresh one.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := s.requestContext(r.Context(), r.Header.Get(transport.RequestIDHeader))
		w.Header().Set(transport.RequestIDHeader, events.GetRequestID(ctx))
		r = r.WithContext(ctx)

		if r.URL.Path == notificationPath {
			s.serveNotifications(w, r)
			return
		}
		s.serveHTTP(w, r)
	})
}

// requestContext attaches the server logger and a request ID to ctx.
func (s *Server) requestContext(ctx context.Context, requestID string) context.Context {
	return events.WithRequestID(events.WithLogger(ctx, s.logger), requestID)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload interface{}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(ctx, w, apiError(http.StatusBadRequest, "Malformed request body"))
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(ctx, w, apiError(http.StatusBadRequest, "Malformed request body"))
			return
		}
	}

	resp, err := s.serve(ctx, bearer(r), r.Method, r.URL.RequestURI(), payload)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) serveNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acct, err := s.authenticate(bearer(r))
	closed := s.closed
	s.mu.Unlock()

	if closed {
		writeError(r.Context(), w, models.ErrConnectionLost)
		return
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		events.FromContext(r.Context()).WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, stop := s.Watch(acct.user.ID)
	defer stop()

	// The read side only exists to answer pings and notice the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server closed"))
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as the API's JSON error body. ctx carries the
// request ID.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	requestID := events.GetRequestID(ctx)

	var apiErr *models.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, models.ErrConnectionLost):
		apiErr = apiError(http.StatusServiceUnavailable, "Service unavailable")
	default:
		apiErr = apiError(http.StatusInternalServerError, "Internal server error")
	}

	writeJSON(w, apiErr.StatusCode, map[string]string{
		"message":    apiErr.Message,
		"code":       apiErr.Code,
		"request_id": requestID,
	})
}
