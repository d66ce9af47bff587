package analytics_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castleatlas/atlas/internal/analytics"
	"github.com/castleatlas/atlas/internal/mockapi"
	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/transport"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, tr transport.Transport, opts ...analytics.Option) *analytics.Tracker {
	t.Helper()

	opts = append([]analytics.Option{
		analytics.WithClock(func() time.Time { return epoch }),
		analytics.WithSampler(func() float64 { return 0 }),
	}, opts...)

	tracker, err := analytics.NewTracker(tr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })
	return tracker
}

func flush(t *testing.T, tracker *analytics.Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tracker.Flush(ctx))
}

func newAPI(t *testing.T) *mockapi.Server {
	t.Helper()
	api, err := mockapi.NewServer()
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.Close() })
	return api
}

func TestTrackerQueuesUntilInit(t *testing.T) {
	api := newAPI(t)
	tracker := newTracker(t, api,
		analytics.WithAppID("atlas-cli"),
		analytics.WithEnvironment("test"),
	)

	tracker.Track(analytics.EventSkillStart, map[string]interface{}{"skill": "masonry"})
	tracker.Track(analytics.EventFeatureUsage, nil)
	assert.Empty(t, api.Events())

	require.NoError(t, tracker.Init())
	flush(t, tracker)

	got := api.Events()
	require.Len(t, got, 2)
	assert.Equal(t, analytics.EventSkillStart, got[0].Event)
	assert.Equal(t, "masonry", got[0].Properties["skill"])
	assert.Equal(t, analytics.EventFeatureUsage, got[1].Event)

	for _, ev := range got {
		assert.Equal(t, tracker.SessionID(), ev.SessionID)
		assert.True(t, strings.HasPrefix(ev.SessionID, "sess_"))
		assert.Equal(t, analytics.AnonymousUser, ev.UserID)
		assert.Equal(t, analytics.Platform, ev.Platform)
		assert.Equal(t, "atlas-cli", ev.AppID)
		assert.Equal(t, "test", ev.Environment)
		assert.True(t, epoch.Equal(ev.Timestamp))
	}
}

func TestTrackerSampleRate(t *testing.T) {
	api := newAPI(t)

	draws := []float64{0.1, 0.9, 0.3, 0.7}
	i := 0
	tracker := newTracker(t, api,
		analytics.WithSampleRate(50),
		analytics.WithSampler(func() float64 {
			d := draws[i%len(draws)]
			i++
			return d
		}),
	)
	require.NoError(t, tracker.Init())

	for range draws {
		tracker.Track(analytics.EventUserLogin, nil)
	}
	flush(t, tracker)

	assert.Len(t, api.Events(), 2)
}

func TestTrackerHelpers(t *testing.T) {
	api := newAPI(t)
	tracker := newTracker(t, api)
	require.NoError(t, tracker.Init())

	tracker.SetUser(mockapi.SeedUserID)
	tracker.TrackUser("login", nil)
	tracker.TrackProgress("skill_complete", map[string]interface{}{"skill": "history"})
	tracker.TrackFeature("export", map[string]interface{}{"format": "json"})
	tracker.TrackError(errors.New("disk full"), map[string]interface{}{"op": "save"})
	tracker.TrackError(nil, nil)
	tracker.SetUser("")
	tracker.Track(analytics.EventUserLogout, nil)
	flush(t, tracker)

	got := api.Events()
	require.Len(t, got, 5)

	assert.Equal(t, "user_login", got[0].Event)
	assert.Equal(t, mockapi.SeedUserID, got[0].UserID)

	assert.Equal(t, "learning_skill_complete", got[1].Event)

	assert.Equal(t, analytics.EventFeatureUsage, got[2].Event)
	assert.Equal(t, "export", got[2].Properties["feature"])
	assert.Equal(t, "json", got[2].Properties["format"])

	assert.Equal(t, analytics.EventError, got[3].Event)
	assert.Equal(t, "disk full", got[3].Properties["message"])
	assert.Equal(t, "save", got[3].Properties["op"])

	assert.Equal(t, analytics.AnonymousUser, got[4].UserID)
}

func TestTrackerSendFailuresAreIgnored(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddError(http.MethodPost, analytics.PathEvents, &models.APIError{StatusCode: http.StatusNotFound})

	tracker := newTracker(t, mock)
	require.NoError(t, tracker.Init())

	tracker.Track(analytics.EventUserSignup, nil)
	tracker.Track(analytics.EventUserLogin, nil)
	flush(t, tracker)

	assert.Equal(t, 2, mock.Calls(http.MethodPost, analytics.PathEvents))
}

func TestTrackerClose(t *testing.T) {
	api := newAPI(t)
	tracker := newTracker(t, api)
	require.NoError(t, tracker.Init())

	tracker.Track(analytics.EventUserLogin, nil)
	require.NoError(t, tracker.Close())
	require.NoError(t, tracker.Close())

	// Close drains what was already dispatched.
	assert.Len(t, api.Events(), 1)

	tracker.Track(analytics.EventUserLogout, nil)
	assert.ErrorIs(t, tracker.Init(), analytics.ErrClosed)
	assert.Len(t, api.Events(), 1)
}

func TestNilTracker(t *testing.T) {
	var tracker *analytics.Tracker

	assert.NotPanics(t, func() {
		tracker.SetUser("1")
		tracker.Track(analytics.EventUserLogin, nil)
		tracker.TrackUser("login", nil)
		tracker.TrackError(errors.New("x"), nil)
	})
	assert.NoError(t, tracker.Init())
	assert.NoError(t, tracker.Flush(context.Background()))
	assert.NoError(t, tracker.Close())
	assert.Empty(t, tracker.SessionID())
}
