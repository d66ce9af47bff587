// Package client wires configuration into the services a Castle Atlas
// session needs.
package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/castleatlas/atlas/internal/analytics"
	"github.com/castleatlas/atlas/internal/config"
	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/mockapi"
	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/progress"
	"github.com/castleatlas/atlas/internal/services/auth"
	"github.com/castleatlas/atlas/internal/services/totp"
	"github.com/castleatlas/atlas/internal/state"
	"github.com/castleatlas/atlas/internal/transport"
)

// ErrNoStream is returned by StreamNotifications when the backend has no
// notification socket.
var ErrNoStream = errors.New("notification stream requires the remote API")

// Client provides the high-level API for Castle Atlas operations.
type Client struct {
	Auth     *auth.Service
	Progress *progress.Manager
	Crypto   *crypto.Utility
	Bus      *events.Bus

	// Analytics is nil when analytics are disabled.
	Analytics *analytics.Tracker

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
	store     state.Store
	mock      *mockapi.Server
}

// Option configures a Client.
type Option func(*options)

type options struct {
	now       func() time.Time
	transport transport.Transport
	store     state.Store
}

// WithClock sets the time source for sessions, notifications and the
// in-process API.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithTransport replaces the configured backend.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithStore replaces the configured session store. It is still sealed with
// the configured or generated passphrase.
func WithStore(s state.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// New creates a client and restores any saved session.
func New(cfg *config.Config, logger *events.Logger, opts ...Option) (*Client, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	cryptoOpts := []crypto.Option{crypto.WithIterations(cfg.Crypto.Iterations)}
	if cfg.Crypto.NormalizePasswords {
		cryptoOpts = append(cryptoOpts, crypto.WithPasswordNormalization())
	}
	util, err := crypto.New(cryptoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create crypto utility: %w", err)
	}

	store, err := openStore(cfg, o.store, util, logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		Crypto: util,
		Bus: events.NewBus(
			events.WithDefaultDuration(cfg.Notify.Duration),
			events.WithClock(o.now),
			events.WithBusLogger(logger),
		),
		config: cfg,
		logger: logger,
		store:  store,
	}

	switch {
	case o.transport != nil:
		c.transport = o.transport
	case cfg.API.Remote:
		c.transport = transport.NewTransport(&cfg.API, logger)
	default:
		mock, err := c.newMockAPI(o.now)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		c.mock = mock
		c.transport = mock
	}

	if cfg.Analytics.Enabled {
		tracker, err := analytics.NewTracker(c.transport,
			analytics.WithSampleRate(cfg.Analytics.SampleRate),
			analytics.WithAppID(cfg.Analytics.AppID),
			analytics.WithEnvironment(cfg.Analytics.Environment),
			analytics.WithClock(o.now),
			analytics.WithLogger(logger),
		)
		if err != nil {
			_ = errors.Join(c.transport.Close(), store.Close())
			return nil, fmt.Errorf("create analytics tracker: %w", err)
		}
		c.Analytics = tracker
	}

	c.Auth = auth.NewService(c.transport, store, logger,
		auth.WithBus(c.Bus),
		auth.WithTracker(c.Analytics),
		auth.WithClock(o.now),
		auth.WithSessionTimeout(cfg.Auth.SessionTimeout),
		auth.WithMinPasswordLength(cfg.Auth.MinPasswordLength),
		auth.WithTOTP(totp.NewService(totp.WithClock(o.now))),
	)

	c.Progress = progress.NewManager(progress.NewClient(c.transport, logger), c.Auth, logger,
		progress.WithBus(c.Bus),
		progress.WithTracker(c.Analytics),
		progress.WithClock(o.now),
	)

	if err := c.Auth.Restore(); err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			logger.Info("Saved session expired")
		} else {
			logger.WithError(err).Warn("Failed to restore session")
		}
	}

	// Events tracked while restoring are sent from here on.
	if err := c.Analytics.Init(); err != nil {
		logger.WithError(err).Warn("Failed to start analytics")
	}

	return c, nil
}

// openStore opens the configured backend and seals it with the configured
// passphrase, or a generated one kept under DataDir. Values never reach the
// backend in clear.
func openStore(cfg *config.Config, override state.Store, util *crypto.Utility, logger *events.Logger) (state.Store, error) {
	if cfg.Storage.Backend != "memory" {
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
	}

	store := override
	if store == nil {
		var err error
		store, err = openBackend(cfg, cfg.Storage.Backend, logger)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		if err := migrateLegacy(cfg, store, logger); err != nil {
			logger.WithError(err).Warn("Failed to migrate session store")
		}
	}

	passphrase, err := sessionPassphrase(cfg, util)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	secure, err := state.NewSecureStore(store, util, passphrase)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seal session store: %w", err)
	}
	return secure, nil
}

func openBackend(cfg *config.Config, backend string, logger *events.Logger) (state.Store, error) {
	switch backend {
	case "json":
		return state.NewJSONStore(cfg.SessionPathFor(backend), logger)
	case "memory":
		return state.NewMemoryStore(), nil
	default:
		return state.NewSQLiteStore(cfg.SessionPathFor(backend), logger)
	}
}

// newMockAPI starts the in-process API. Its signing key is kept in the
// session store so a saved token survives a restart.
func (c *Client) newMockAPI(now func() time.Time) (*mockapi.Server, error) {
	key, err := c.mockSigningKey()
	if err != nil {
		return nil, err
	}

	c.logger.WithField("latency", c.config.API.MockLatency).Debug("Using in-process API")

	mock, err := mockapi.NewServer(
		mockapi.WithClock(now),
		mockapi.WithLatency(c.config.API.MockLatency),
		mockapi.WithTokenTTL(c.config.Auth.SessionTimeout),
		mockapi.WithLogger(c.logger),
		mockapi.WithCrypto(c.Crypto),
		mockapi.WithSigningKey(key),
	)
	if err != nil {
		return nil, fmt.Errorf("start mock API: %w", err)
	}
	return mock, nil
}

func (c *Client) mockSigningKey() ([]byte, error) {
	if stored, err := c.store.Get(state.MockSigningKey); err == nil {
		if key, err := hex.DecodeString(stored); err == nil && len(key) == crypto.KeySize {
			return key, nil
		}
		c.logger.Warn("Discarding unreadable mock signing key")
	} else if !errors.Is(err, state.ErrNotFound) {
		c.logger.WithError(err).Warn("Failed to read mock signing key")
	}

	key, err := c.Crypto.GenerateKey(crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate mock signing key: %w", err)
	}
	if err := c.store.Set(state.MockSigningKey, hex.EncodeToString(key)); err != nil {
		c.logger.WithError(err).Warn("Failed to save mock signing key")
	}
	return key, nil
}

// Config returns the configuration the client was built from.
func (c *Client) Config() *config.Config {
	return c.config
}

// Transport returns the backend in use.
func (c *Client) Transport() transport.Transport {
	return c.transport
}

// MockAPI returns the in-process API, or nil when talking to a remote one.
func (c *Client) MockAPI() *mockapi.Server {
	return c.mock
}

// Login signs in, answering a TOTP challenge from the configured secret.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	return c.Auth.Login(ctx, email, password, c.config.Auth.TOTPSecret)
}

// Logout ends the session and clears progress state.
func (c *Client) Logout() error {
	err := c.Auth.Logout()
	c.Progress.Reset()
	return err
}

// StreamNotifications follows the server's notification socket, publishing
// every message on Bus.
func (c *Client) StreamNotifications(ctx context.Context) (*transport.NotificationStream, error) {
	dt, ok := c.transport.(*transport.DefaultTransport)
	if !ok {
		return nil, ErrNoStream
	}
	if _, err := c.Auth.Token(); err != nil {
		return nil, err
	}
	return dt.StreamNotifications(ctx, c.Bus)
}

// Close sends pending analytics, then releases the transport and the store
// and closes the bus.
func (c *Client) Close() error {
	err := errors.Join(c.Analytics.Close(), c.transport.Close(), c.store.Close())
	c.Bus.Close()
	return err
}
