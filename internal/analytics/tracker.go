// Package analytics records usage events and posts them to the API's
// /events endpoint in the background.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/transport"
)

// Event names.
const (
	EventUserSignup          = "user_signup"
	EventUserLogin           = "user_login"
	EventUserLogout          = "user_logout"
	EventSkillStart          = "skill_start"
	EventSkillComplete       = "skill_complete"
	EventAchievementEarned   = "achievement_earned"
	EventSubscriptionStarted = "subscription_started"
	EventFeatureUsage        = "feature_usage"
	EventError               = "error"
)

// PathEvents is where events are posted.
const PathEvents = "/events"

// Defaults
const (
	DefaultSampleRate = 100
	DefaultBuffer     = 64
	DefaultQueueSize  = 100
	DefaultTimeout    = 5 * time.Second
	Platform          = "cli"
	AnonymousUser     = "anonymous"
)

// ErrClosed is returned by Init after Close.
var ErrClosed = errors.New("analytics tracker closed")

// Tracker stamps events with session-wide properties and sends them from a
// background goroutine. Events tracked before Init are queued and sent by
// Init. A nil *Tracker discards everything.
type Tracker struct {
	transport transport.Transport
	logger    *events.Logger
	now       func() time.Time
	sample    func() float64

	sampleRate  float64
	appID       string
	environment string
	sessionID   string
	buffer      int
	queueSize   int
	timeout     time.Duration

	mu          sync.Mutex
	userID      string
	initialized bool
	closed      bool
	queue       []models.AnalyticsEvent
	ch          chan models.AnalyticsEvent
	pending     int
	idle        []chan struct{}
	done        chan struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSampleRate sets the percentage of events that are sent. Zero keeps
// DefaultSampleRate.
func WithSampleRate(rate float64) Option {
	return func(t *Tracker) {
		if rate > 0 {
			t.sampleRate = rate
		}
	}
}

// WithAppID tags every event with the application ID.
func WithAppID(id string) Option {
	return func(t *Tracker) {
		t.appID = id
	}
}

// WithEnvironment tags every event with the deployment environment.
func WithEnvironment(env string) Option {
	return func(t *Tracker) {
		t.environment = env
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithSampler replaces the source of sampling draws. fn returns values in
// [0, 1).
func WithSampler(fn func() float64) Option {
	return func(t *Tracker) {
		t.sample = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *events.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithTimeout bounds each send.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// NewTracker creates an uninitialized tracker posting through tr.
func NewTracker(tr transport.Transport, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		transport:  tr,
		logger:     events.NewNopLogger(),
		now:        time.Now,
		sample:     rand.Float64,
		sampleRate: DefaultSampleRate,
		buffer:     DefaultBuffer,
		queueSize:  DefaultQueueSize,
		timeout:    DefaultTimeout,
		userID:     AnonymousUser,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	id, err := crypto.GenerateToken(6)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	t.sessionID = "sess_" + id
	t.logger = t.logger.WithFields(map[string]interface{}{
		"component":  "analytics",
		"session_id": t.sessionID,
	})

	return t, nil
}

// SessionID returns the ID shared by every event from this tracker.
func (t *Tracker) SessionID() string {
	if t == nil {
		return ""
	}
	return t.sessionID
}

// SetUser attributes later events to userID. An empty ID means anonymous.
func (t *Tracker) SetUser(userID string) {
	if t == nil {
		return
	}
	if userID == "" {
		userID = AnonymousUser
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.userID = userID
}

// Init starts the sender and replays queued events through sampling.
func (t *Tracker) Init() error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.initialized {
		return nil
	}

	t.ch = make(chan models.AnalyticsEvent, t.buffer)
	t.initialized = true
	go t.run()

	queued := t.queue
	t.queue = nil
	for _, ev := range queued {
		t.dispatch(ev)
	}

	t.logger.WithField("replayed", len(queued)).Debug("Analytics initialized")
	return nil
}

// Track records event with optional properties.
func (t *Tracker) Track(event string, props map[string]interface{}) {
	if t == nil || event == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	ev := models.AnalyticsEvent{
		Event:       event,
		Timestamp:   t.now().UTC(),
		SessionID:   t.sessionID,
		UserID:      t.userID,
		AppID:       t.appID,
		Platform:    Platform,
		Environment: t.environment,
		Properties:  props,
	}

	if !t.initialized {
		if len(t.queue) >= t.queueSize {
			t.queue = t.queue[1:]
		}
		t.queue = append(t.queue, ev)
		return
	}

	t.dispatch(ev)
}

// TrackUser records a "user_<action>" event.
func (t *Tracker) TrackUser(action string, props map[string]interface{}) {
	t.Track("user_"+action, props)
}

// TrackProgress records a "learning_<action>" event.
func (t *Tracker) TrackProgress(action string, props map[string]interface{}) {
	t.Track("learning_"+action, props)
}

// TrackFeature records use of a named feature.
func (t *Tracker) TrackFeature(feature string, props map[string]interface{}) {
	merged := map[string]interface{}{"feature": feature}
	for k, v := range props {
		merged[k] = v
	}
	t.Track(EventFeatureUsage, merged)
}

// TrackError records err with optional context.
func (t *Tracker) TrackError(err error, props map[string]interface{}) {
	if err == nil {
		return
	}
	merged := map[string]interface{}{"message": err.Error()}
	for k, v := range props {
		merged[k] = v
	}
	t.Track(EventError, merged)
}

// dispatch samples ev and hands it to the sender. Callers hold t.mu.
func (t *Tracker) dispatch(ev models.AnalyticsEvent) {
	if t.sample()*100 >= t.sampleRate {
		return
	}

	select {
	case t.ch <- ev:
		t.pending++
	default:
		t.logger.WithField("event", ev.Event).Debug("Analytics buffer full, event dropped")
	}
}

func (t *Tracker) run() {
	defer close(t.done)

	for ev := range t.ch {
		t.send(ev)

		t.mu.Lock()
		t.pending--
		if t.pending == 0 {
			for _, ch := range t.idle {
				close(ch)
			}
			t.idle = nil
		}
		t.mu.Unlock()
	}
}

// send posts one event. Failures are logged and otherwise ignored.
func (t *Tracker) send(ev models.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if _, err := t.transport.PostJSON(ctx, PathEvents, ev); err != nil {
		t.logger.WithError(err).WithField("event", ev.Event).Debug("Failed to send analytics event")
	}
}

// Flush waits until every dispatched event has been sent or ctx is done.
func (t *Tracker) Flush(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	if t.pending == 0 {
		t.mu.Unlock()
		return nil
	}
	flushed := make(chan struct{})
	t.idle = append(t.idle, flushed)
	t.mu.Unlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for the sender to drain. Events
// still queued from before Init are discarded.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.queue = nil
	started := t.initialized
	if started {
		close(t.ch)
	}
	t.mu.Unlock()

	if started {
		<-t.done
	}
	return nil
}
