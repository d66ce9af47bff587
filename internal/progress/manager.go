package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/castleatlas/atlas/internal/analytics"
	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/models"
)

// UserSource reports who is signed in. auth.Service satisfies it.
type UserSource interface {
	CurrentUser() *models.User
}

// Manager runs progress requests for the signed-in user and records the
// results in its Store. Every operation is a no-op when nobody is signed in.
type Manager struct {
	client *Client
	users  UserSource
	store   *Store
	bus     *events.Bus
	tracker *analytics.Tracker
	logger  *events.Logger

	mu    sync.Mutex
	known map[string]bool // achievement IDs seen so far; nil before the first fetch
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	bus     *events.Bus
	tracker *analytics.Tracker
	now     func() time.Time
}

// WithBus publishes skill completions on bus.
func WithBus(bus *events.Bus) Option {
	return func(o *managerOptions) {
		o.bus = bus
	}
}

// WithTracker records skill starts, completions and newly earned
// achievements on tracker.
func WithTracker(t *analytics.Tracker) Option {
	return func(o *managerOptions) {
		o.tracker = t
	}
}

// WithClock sets the time source for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) {
		o.now = now
	}
}

// NewManager creates a manager with an empty store.
func NewManager(client *Client, users UserSource, logger *events.Logger, opts ...Option) *Manager {
	o := &managerOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	return &Manager{
		client: client,
		users:  users,
		store:   NewStore(o.now),
		bus:     o.bus,
		tracker: o.tracker,
		logger:  logger.WithField("component", "progress_manager"),
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	return m.store.State()
}

// Subscribe calls fn after every state change.
func (m *Manager) Subscribe(fn func(State)) func() {
	return m.store.Subscribe(fn)
}

func (m *Manager) userID() (string, bool) {
	user := m.users.CurrentUser()
	if user == nil {
		return "", false
	}
	return user.ID, true
}

// FetchProgress loads the overall progress.
func (m *Manager) FetchProgress(ctx context.Context) error {
	userID, ok := m.userID()
	if !ok {
		return nil
	}

	m.store.Dispatch(SetLoading(true))

	overall, err := m.client.OverallProgress(ctx, userID)
	if err != nil {
		return m.fail(err)
	}

	m.store.Dispatch(UpdateProgress(overall))
	m.store.Dispatch(SetLoading(false))
	return nil
}

// FetchSkills loads progress for every started skill.
func (m *Manager) FetchSkills(ctx context.Context) error {
	userID, ok := m.userID()
	if !ok {
		return nil
	}

	m.store.Dispatch(SetLoading(true))

	skills, err := m.client.Skills(ctx, userID)
	if err != nil {
		return m.fail(err)
	}

	for _, skill := range skills {
		m.store.Dispatch(UpdateSkillProgress(skill.SkillID, skill.Progress))
	}
	m.store.Dispatch(SetLoading(false))
	return nil
}

// UpdateSkillProgress saves progress for skillID, then reloads the overall
// progress.
func (m *Manager) UpdateSkillProgress(ctx context.Context, skillID string, progress float64) error {
	userID, ok := m.userID()
	if !ok {
		return nil
	}

	if skillID == "" {
		return m.fail(&models.ValidationError{Field: "skill", Reason: models.MsgRequiredField, Err: models.ErrRequiredField})
	}
	if progress < 0 || progress > 100 {
		return m.fail(&models.ValidationError{
			Field:  "progress",
			Reason: "Progress must be between 0 and 100.",
			Err:    models.ErrInvalidProgress,
		})
	}

	m.store.Dispatch(SetLoading(true))

	previous, started := m.State().SkillProgress[skillID]

	if err := m.client.UpdateSkillProgress(ctx, userID, skillID, progress); err != nil {
		return m.fail(err)
	}

	m.store.Dispatch(UpdateSkillProgress(skillID, progress))

	m.logger.WithFields(map[string]interface{}{
		"skill_id": skillID,
		"progress": progress,
	}).Info("Skill progress updated")

	props := map[string]interface{}{"skill": skillID, "progress": progress}
	if !started && progress > 0 {
		m.tracker.Track(analytics.EventSkillStart, props)
	}
	if progress == 100 && (!started || previous < 100) {
		m.tracker.Track(analytics.EventSkillComplete, props)
		m.notify(events.LevelSuccess, models.MsgSkillCompleted)
	}

	return m.FetchProgress(ctx)
}

// FetchStreak loads the current streak.
func (m *Manager) FetchStreak(ctx context.Context) error {
	userID, ok := m.userID()
	if !ok {
		return nil
	}

	streak, err := m.client.CurrentStreak(ctx, userID)
	if err != nil {
		return m.fail(err)
	}

	m.store.Dispatch(SetStreak(streak))
	return nil
}

// FetchAchievements loads the achievement list.
func (m *Manager) FetchAchievements(ctx context.Context) error {
	userID, ok := m.userID()
	if !ok {
		return nil
	}

	achievements, err := m.client.Achievements(ctx, userID)
	if err != nil {
		return m.fail(err)
	}

	m.store.Dispatch(UpdateAchievements(achievements))
	m.trackEarned(achievements)
	return nil
}

// trackEarned records achievements that appeared since the previous fetch.
// The first fetch only learns what the user already has.
func (m *Manager) trackEarned(achievements []models.Achievement) {
	m.mu.Lock()
	defer m.mu.Unlock()

	first := m.known == nil
	if first {
		m.known = make(map[string]bool, len(achievements))
	}

	for _, a := range achievements {
		if m.known[a.ID] {
			continue
		}
		m.known[a.ID] = true
		if !first {
			m.tracker.Track(analytics.EventAchievementEarned, map[string]interface{}{
				"achievement": a.ID,
				"type":        a.Type,
				"title":       a.Title,
			})
		}
	}
}

// Refresh loads everything the dashboard shows. It stops at the first error.
func (m *Manager) Refresh(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"progress", m.FetchProgress},
		{"skills", m.FetchSkills},
		{"streak", m.FetchStreak},
		{"achievements", m.FetchAchievements},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("refresh %s: %w", step.name, err)
		}
	}
	return nil
}

// Reset clears all progress state, e.g. on logout.
func (m *Manager) Reset() {
	m.store.Dispatch(ResetState())

	m.mu.Lock()
	m.known = nil
	m.mu.Unlock()
}

// fail records err in the state and returns it.
func (m *Manager) fail(err error) error {
	m.logger.WithError(err).Warn("Progress request failed")
	m.store.Dispatch(SetError(models.UserMessage(err)))
	return err
}

func (m *Manager) notify(level events.NotificationLevel, message string) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(events.Notification{Level: level, Message: message}); err != nil {
		m.logger.WithError(err).Debug("Notification dropped")
	}
}
