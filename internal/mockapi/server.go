// Package mockapi is an in-process stand-in for the Castle Atlas REST API.
// It implements transport.Transport so services can run without a network.
package mockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/services/totp"
)

// Seeded account, matching the demo credentials the web client shipped with.
const (
	SeedEmail    = "test@example.com"
	SeedPassword = "password"
	SeedName     = "Test User"
	SeedUserID   = "1"
)

// Defaults
const (
	DefaultTokenTTL   = time.Hour
	DefaultResetTTL   = time.Hour
	signingKeySize    = 32
	resetTokenSize    = 16
	passwordSaltSize  = 16
	maxEvents         = 1000
)

// Server holds users, sessions and progress in memory.
type Server struct {
	mu sync.Mutex

	crypto     *crypto.Utility
	totp       *totp.DefaultService
	signingKey []byte
	logger     *events.Logger

	now      func() time.Time
	latency  time.Duration
	tokenTTL time.Duration
	resetTTL time.Duration

	users    map[string]*account // by lower-case email
	resets   map[string]resetCode
	mailbox  map[string]string
	progress map[string]*userProgress // by user ID

	watchers    map[int]*watcher
	nextWatcher int

	tracked []models.AnalyticsEvent

	token  string
	closed bool
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the time source for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithLatency delays every request by d. The delay honours ctx.
func WithLatency(d time.Duration) Option {
	return func(s *Server) {
		s.latency = d
	}
}

// WithTokenTTL sets how long issued session tokens stay valid.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *events.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCrypto sets the utility used for hashing and key generation.
func WithCrypto(u *crypto.Utility) Option {
	return func(s *Server) {
		s.crypto = u
	}
}

// WithSigningKey sets the HS256 key for session tokens so they stay valid
// across restarts. A random key is generated when unset.
func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		s.signingKey = key
	}
}

// NewServer creates a server with the seeded demo account.
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		crypto:   crypto.Default(),
		logger:   events.NewNopLogger(),
		now:      time.Now,
		tokenTTL: DefaultTokenTTL,
		resetTTL: DefaultResetTTL,
		users:    make(map[string]*account),
		resets:   make(map[string]resetCode),
		mailbox:  make(map[string]string),
		progress: make(map[string]*userProgress),
		watchers: make(map[int]*watcher),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.totp = totp.NewService(totp.WithClock(s.now))
	s.logger = s.logger.WithField("component", "mockapi")

	if len(s.signingKey) == 0 {
		key, err := s.crypto.GenerateKey(signingKeySize)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		s.signingKey = key
	}

	if _, err := s.addUser(SeedUserID, SeedName, SeedEmail, SeedPassword); err != nil {
		return nil, fmt.Errorf("seed user: %w", err)
	}
	s.progress[SeedUserID] = seedProgress(s.now())

	return s, nil
}

// GetJSON handles a GET request.
func (s *Server) GetJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return s.handle(ctx, http.MethodGet, path, payload)
}

// PostJSON handles a POST request.
func (s *Server) PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return s.handle(ctx, http.MethodPost, path, payload)
}

// PutJSON handles a PUT request.
func (s *Server) PutJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return s.handle(ctx, http.MethodPut, path, payload)
}

// DeleteJSON handles a DELETE request.
func (s *Server) DeleteJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return s.handle(ctx, http.MethodDelete, path, payload)
}

// SetToken sets the bearer token sent with later requests.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// GetToken returns the bearer token.
func (s *Server) GetToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Close makes later requests fail with ErrConnectionLost and ends every
// notification watch.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, w := range s.watchers {
		close(w.ch)
		delete(s.watchers, id)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, method, path string, payload interface{}) (map[string]interface{}, error) {
	ctx = s.requestContext(ctx, events.GetRequestID(ctx))
	return s.serve(ctx, s.GetToken(), method, path, payload)
}

// serve routes one request made with token. ctx carries the request logger.
func (s *Server) serve(ctx context.Context, token, method, path string, payload interface{}) (map[string]interface{}, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, models.ErrConnectionLost
	}

	logger := events.FromContext(ctx)
	logger.WithFields(map[string]interface{}{
		"method": method,
		"path":   path,
	}).Debug("Handling request")

	route := strings.TrimSuffix(path, "/")
	if i := strings.IndexByte(route, '?'); i >= 0 {
		route = route[:i]
	}

	var (
		resp interface{}
		err  error
	)

	switch {
	case method == http.MethodPost && route == "/auth/login":
		resp, err = s.login(payload)
	case method == http.MethodPost && route == "/auth/register":
		resp, err = s.register(payload)
	case method == http.MethodPost && route == "/auth/refresh":
		resp, err = s.refresh(token)
	case method == http.MethodPost && route == "/auth/reset-password":
		resp, err = s.requestReset(payload)
	case method == http.MethodPost && route == "/auth/reset-password/confirm":
		resp, err = s.confirmReset(payload)
	case method == http.MethodGet && route == "/auth/me":
		resp, err = s.me(token)
	case method == http.MethodPost && route == "/auth/totp":
		resp, err = s.enableTOTP(token)
	case method == http.MethodPost && route == "/events":
		resp, err = s.recordEvent(payload)
	case strings.HasPrefix(route, "/progress/"):
		resp, err = s.routeProgress(token, method, strings.TrimPrefix(route, "/progress/"), payload)
	default:
		err = apiError(http.StatusNotFound, "Not found")
	}

	if err != nil {
		logger.WithError(err).Debug("Request failed")
		return nil, err
	}

	return toMap(resp)
}

// wait sleeps for the configured latency or until ctx is done.
func (s *Server) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func apiError(status int, message string) *models.APIError {
	return &models.APIError{
		StatusCode: status,
		Code:       models.CodeForStatus(status),
		Message:    message,
	}
}

// decode converts a request payload into dst the way a JSON body would.
func decode(payload interface{}, dst interface{}) error {
	if payload == nil {
		return apiError(http.StatusBadRequest, models.MsgRequiredField)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return apiError(http.StatusBadRequest, "Malformed request body")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apiError(http.StatusBadRequest, "Malformed request body")
	}
	return nil
}

// toMap renders a response the way the HTTP client would decode it.
func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	result := map[string]interface{}{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}
