package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/castleatlas/atlas/internal/analytics"
	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/sanitize"
	"github.com/castleatlas/atlas/internal/services/totp"
	"github.com/castleatlas/atlas/internal/state"
	"github.com/castleatlas/atlas/internal/transport"
)

// API paths.
const (
	PathLogin        = "/auth/login"
	PathRegister     = "/auth/register"
	PathRefresh      = "/auth/refresh"
	PathResetRequest = "/auth/reset-password"
	PathResetConfirm = "/auth/reset-password/confirm"
)

// refreshWindow is how close to expiry EnsureAuthenticated refreshes.
const refreshWindow = 5 * time.Minute

// Service handles authentication operations and owns the current session.
type Service struct {
	transport transport.Transport
	store     state.Store
	totp      totp.Service
	bus       *events.Bus
	tracker   *analytics.Tracker
	logger    *events.Logger

	now               func() time.Time
	sessionTimeout    time.Duration
	minPasswordLength int

	mu      sync.RWMutex
	session *models.Session
}

// Option configures a Service.
type Option func(*Service)

// WithBus publishes user-facing results on bus.
func WithBus(bus *events.Bus) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

// WithTracker records sign-ins, sign-ups and failures on tracker.
func WithTracker(t *analytics.Tracker) Option {
	return func(s *Service) {
		s.tracker = t
	}
}

// WithClock sets the time source for session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSessionTimeout sets how long a session lasts. Zero disables expiry.
func WithSessionTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.sessionTimeout = d
	}
}

// WithMinPasswordLength sets the shortest accepted new password.
func WithMinPasswordLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minPasswordLength = n
		}
	}
}

// WithTOTP replaces the code generator used for two-factor logins.
func WithTOTP(t totp.Service) Option {
	return func(s *Service) {
		s.totp = t
	}
}

// NewService creates an auth service. store may be nil, in which case the
// session lives only in memory.
func NewService(t transport.Transport, store state.Store, logger *events.Logger, opts ...Option) *Service {
	s := &Service{
		transport:         t,
		store:             store,
		totp:              totp.NewService(),
		logger:            logger.WithField("service", "auth"),
		now:               time.Now,
		sessionTimeout:    time.Hour,
		minPasswordLength: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates and stores the session. When totpSecret is set a
// current code is generated from it and sent along.
func (s *Service) Login(ctx context.Context, email, password, totpSecret string) (*models.User, error) {
	req := models.LoginRequest{Email: sanitize.NormalizeEmail(email), Password: password}
	if err := models.Validate(req); err != nil {
		return nil, s.fail(err)
	}
	clean := req.Email

	logger := s.logger.WithField("email", clean)
	if totpSecret != "" {
		code, err := s.totp.GenerateCode(totpSecret)
		if err != nil {
			return nil, s.fail(&models.AuthError{Op: "login", Email: clean, Err: fmt.Errorf("generate TOTP code: %w", err)})
		}
		req.TOTP = code
		logger.Info("Logging in with TOTP")
	} else {
		logger.Info("Logging in")
	}

	resp, err := s.transport.PostJSON(ctx, PathLogin, req)
	if err != nil {
		return nil, s.fail(&models.AuthError{Op: "login", Email: clean, Err: loginError(err)})
	}

	user, err := s.handleAuthResponse(resp)
	if err != nil {
		return nil, s.fail(&models.AuthError{Op: "login", Email: clean, Err: err})
	}

	s.userLogger(ctx, user.ID).Info("Login successful")
	s.tracker.Track(analytics.EventUserLogin, map[string]interface{}{"totp": totpSecret != ""})
	s.notify(events.LevelSuccess, models.MsgLoginSuccess)
	return user, nil
}

// loginError maps API rejections onto sentinels.
func loginError(err error) error {
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == models.ErrCodeTOTP:
		return fmt.Errorf("%w: %w", models.ErrTOTPRequired, err)
	case apiErr.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", models.ErrInvalidCredentials, err)
	case apiErr.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %w", models.ErrUserExists, err)
	}
	return err
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if err := models.ValidateField("name", name, "required"); err != nil {
		return nil, s.fail(err)
	}

	clean, err := s.validateEmail(email)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.validatePassword(password); err != nil {
		return nil, s.fail(err)
	}

	s.logger.WithField("email", clean).Info("Registering")

	resp, err := s.transport.PostJSON(ctx, PathRegister, models.RegisterRequest{
		Name:     name,
		Email:    clean,
		Password: password,
	})
	if err != nil {
		return nil, s.fail(&models.AuthError{Op: "register", Email: clean, Err: loginError(err)})
	}

	user, err := s.handleAuthResponse(resp)
	if err != nil {
		return nil, s.fail(&models.AuthError{Op: "register", Email: clean, Err: err})
	}

	s.userLogger(ctx, user.ID).Info("Registration successful")
	s.tracker.Track(analytics.EventUserSignup, nil)
	s.notify(events.LevelSuccess, models.MsgRegisterSuccess)
	return user, nil
}

// Logout clears the session from memory, the transport and the store.
func (s *Service) Logout() error {
	s.logger.Info("Logging out")

	s.mu.Lock()
	wasSignedIn := s.session != nil
	s.session = nil
	s.mu.Unlock()

	if wasSignedIn {
		s.tracker.Track(analytics.EventUserLogout, nil)
	}
	s.tracker.SetUser("")

	s.transport.SetToken("")

	if s.store == nil {
		return nil
	}

	var errs []error
	for _, key := range []string{state.TokenKey, state.UserKey, state.IssuedAtKey} {
		if err := s.store.Delete(key); err != nil {
			errs = append(errs, &models.StorageError{Op: "delete", Key: key, Err: err})
		}
	}
	return errors.Join(errs...)
}

// IsAuthenticated reports whether a live session exists.
func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil && !s.session.IsExpired(s.now(), s.sessionTimeout)
}

// CurrentUser returns the signed-in user, or nil.
func (s *Service) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil || s.session.IsExpired(s.now(), s.sessionTimeout) {
		return nil
	}
	user := s.session.User
	return &user
}

// Token returns the session token. An expired session is cleared and
// reported as ErrSessionExpired.
func (s *Service) Token() (string, error) {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()

	if session == nil {
		return "", models.ErrNotAuthenticated
	}

	if session.IsExpired(s.now(), s.sessionTimeout) {
		if err := s.Logout(); err != nil {
			s.logger.WithError(err).Warn("Failed to clear expired session")
		}
		s.notify(events.LevelWarning, models.MsgSessionExpired)
		return "", models.ErrSessionExpired
	}

	return session.Token, nil
}

// AuthHeaders returns headers for an authenticated JSON request.
func (s *Service) AuthHeaders() map[string]string {
	headers := map[string]string{"Content-Type": "application/json"}
	if token, err := s.Token(); err == nil {
		headers["Authorization"] = "Bearer " + token
	}
	return headers
}

// RefreshToken exchanges the current token for a new one. Any failure ends
// the session.
func (s *Service) RefreshToken(ctx context.Context) error {
	if _, err := s.Token(); err != nil {
		return err
	}

	s.logger.Debug("Refreshing token")

	resp, err := s.transport.PostJSON(ctx, PathRefresh, nil)
	if err == nil {
		_, err = s.handleAuthResponse(resp)
	}

	if err != nil {
		if logoutErr := s.Logout(); logoutErr != nil {
			s.logger.WithError(logoutErr).Warn("Failed to clear session")
		}
		return s.fail(&models.AuthError{Op: "refresh", Err: err})
	}

	return nil
}

// EnsureAuthenticated refreshes the session when it is close to expiry.
func (s *Service) EnsureAuthenticated(ctx context.Context) error {
	if _, err := s.Token(); err != nil {
		return err
	}

	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()

	if session == nil {
		return models.ErrNotAuthenticated
	}
	if s.sessionTimeout > 0 && s.now().Sub(session.IssuedAt) > s.sessionTimeout-refreshWindow {
		return s.RefreshToken(ctx)
	}
	return nil
}

// RequestPasswordReset asks the API to send a reset code to email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	clean, err := s.validateEmail(email)
	if err != nil {
		return s.fail(err)
	}

	if _, err := s.transport.PostJSON(ctx, PathResetRequest, models.ResetRequest{Email: clean}); err != nil {
		return s.fail(&models.AuthError{Op: "reset request", Email: clean, Err: err})
	}

	s.logger.WithField("email", clean).Info("Password reset requested")
	return nil
}

// ResetPassword sets a new password using a reset code.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if err := models.ValidateField("token", token, "required"); err != nil {
		return s.fail(err)
	}
	if err := s.validatePassword(newPassword); err != nil {
		return s.fail(err)
	}

	_, err := s.transport.PostJSON(ctx, PathResetConfirm, models.ResetConfirm{
		Token:       token,
		NewPassword: newPassword,
	})
	if err != nil {
		var apiErr *models.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			err = fmt.Errorf("%w: %w", models.ErrInvalidResetToken, err)
		}
		return s.fail(&models.AuthError{Op: "reset", Err: err})
	}

	s.notify(events.LevelSuccess, models.MsgPasswordChanged)
	return nil
}

// Restore loads a saved session from the store. A missing session is not an
// error; an expired one is cleared and reported as ErrSessionExpired. A
// session without a readable issue time counts as expired.
func (s *Service) Restore() error {
	if s.store == nil {
		return nil
	}

	token, err := s.store.Get(state.TokenKey)
	if errors.Is(err, state.ErrNotFound) {
		return nil
	}
	if err != nil {
		return &models.StorageError{Op: "get", Key: state.TokenKey, Err: err}
	}

	session := &models.Session{Token: token}

	if raw, err := s.store.Get(state.UserKey); err == nil {
		if err := json.Unmarshal([]byte(raw), &session.User); err != nil {
			return &models.StorageError{Op: "decode", Key: state.UserKey, Err: err}
		}
	} else if !errors.Is(err, state.ErrNotFound) {
		return &models.StorageError{Op: "get", Key: state.UserKey, Err: err}
	}

	issued, err := s.issuedAt()
	if err != nil {
		s.logger.WithError(err).Warn("Saved session has no usable issue time")
	}
	session.IssuedAt = issued

	if err != nil || session.IsExpired(s.now(), s.sessionTimeout) {
		if err := s.Logout(); err != nil {
			s.logger.WithError(err).Warn("Failed to clear expired session")
		}
		return models.ErrSessionExpired
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	s.transport.SetToken(token)
	s.tracker.SetUser(session.User.ID)

	s.userLogger(context.Background(), session.User.ID).Debug("Session restored")
	return nil
}

// issuedAt reads the stored issue time.
func (s *Service) issuedAt() (time.Time, error) {
	raw, err := s.store.Get(state.IssuedAtKey)
	if err != nil {
		return time.Time{}, &models.StorageError{Op: "get", Key: state.IssuedAtKey, Err: err}
	}

	issued, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, &models.StorageError{Op: "decode", Key: state.IssuedAtKey, Err: err}
	}
	return issued, nil
}

// userLogger returns the service logger tagged with userID through ctx.
func (s *Service) userLogger(ctx context.Context, userID string) *events.Logger {
	ctx = events.WithUserID(events.WithLogger(ctx, s.logger), userID)
	return events.FromContext(ctx)
}

// handleAuthResponse stores the token and user from a login, register or
// refresh response.
func (s *Service) handleAuthResponse(resp map[string]interface{}) (*models.User, error) {
	var auth models.AuthResponse
	if err := decodeResponse(resp, &auth); err != nil {
		return nil, fmt.Errorf("invalid auth response: %w", err)
	}
	if auth.Token == "" {
		return nil, errors.New("invalid auth response: missing token")
	}

	session := &models.Session{
		Token:    auth.Token,
		User:     auth.User,
		IssuedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.transport.SetToken(auth.Token)
	s.tracker.SetUser(auth.User.ID)

	if err := s.persist(session); err != nil {
		s.logger.WithError(err).Warn("Failed to save session")
	}

	user := session.User
	return &user, nil
}

func (s *Service) persist(session *models.Session) error {
	if s.store == nil {
		return nil
	}

	userJSON, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	values := []struct{ key, value string }{
		{state.TokenKey, session.Token},
		{state.UserKey, string(userJSON)},
		{state.IssuedAtKey, session.IssuedAt.Format(time.RFC3339Nano)},
	}
	for _, v := range values {
		if err := s.store.Set(v.key, v.value); err != nil {
			return &models.StorageError{Op: "set", Key: v.key, Err: err}
		}
	}
	return nil
}

// validateEmail returns the normalized address when it is a valid one.
func (s *Service) validateEmail(email string) (string, error) {
	clean := sanitize.NormalizeEmail(email)
	if err := models.ValidateField("email", clean, "required,email"); err != nil {
		return "", err
	}
	return clean, nil
}

func (s *Service) validatePassword(password string) error {
	return models.ValidatePassword(password, s.minPasswordLength)
}

// fail publishes err as an error notification and returns it. Rejections
// other than input validation are also tracked.
func (s *Service) fail(err error) error {
	var valErr *models.ValidationError
	if !errors.As(err, &valErr) {
		s.tracker.TrackError(err, map[string]interface{}{"service": "auth"})
	}
	s.notify(events.LevelError, models.UserMessage(err))
	return err
}

func (s *Service) notify(level events.NotificationLevel, message string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(events.Notification{Level: level, Message: message}); err != nil {
		s.logger.WithError(err).Debug("Notification dropped")
	}
}

func decodeResponse(resp map[string]interface{}, dst interface{}) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
