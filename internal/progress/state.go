// Package progress tracks the signed-in user's learning progress. State
// changes go through Reduce so every transition is a pure function of the
// previous state and an action.
package progress

import (
	"time"

	"github.com/castleatlas/atlas/internal/models"
)

// State is a snapshot of the user's progress. Values returned by Reduce share
// nothing mutable with their input, but callers must not modify the maps or
// slices of a state they did not build.
type State struct {
	Loading         bool                 `json:"loading"`
	Error           string               `json:"error,omitempty"`
	OverallProgress float64              `json:"overall_progress"`
	SkillProgress   map[string]float64   `json:"skill_progress"`
	CurrentStreak   int                  `json:"current_streak"`
	Achievements    []models.Achievement `json:"achievements"`
	LastUpdated     time.Time            `json:"last_updated,omitempty"`
}

// InitialState is the empty state a new session starts with.
func InitialState() State {
	return State{
		SkillProgress: map[string]float64{},
		Achievements:  []models.Achievement{},
	}
}

// ActionType names a state transition.
type ActionType string

const (
	ActionSetLoading          ActionType = "SET_LOADING"
	ActionSetError            ActionType = "SET_ERROR"
	ActionUpdateProgress      ActionType = "UPDATE_PROGRESS"
	ActionUpdateSkillProgress ActionType = "UPDATE_SKILL_PROGRESS"
	ActionSetStreak           ActionType = "SET_STREAK"
	ActionUpdateAchievements  ActionType = "UPDATE_ACHIEVEMENTS"
	ActionResetState          ActionType = "RESET_STATE"
)

// Action is a state transition and its payload. Only the fields relevant to
// Type are read.
type Action struct {
	Type         ActionType
	Loading      bool
	Error        string
	Progress     float64
	SkillID      string
	Streak       int
	Achievements []models.Achievement
}

// SetLoading marks a request as in flight and clears any error.
func SetLoading(loading bool) Action {
	return Action{Type: ActionSetLoading, Loading: loading}
}

// SetError records a failure and ends loading.
func SetError(message string) Action {
	return Action{Type: ActionSetError, Error: message}
}

// UpdateProgress sets the overall progress.
func UpdateProgress(progress float64) Action {
	return Action{Type: ActionUpdateProgress, Progress: progress}
}

// UpdateSkillProgress sets one skill's progress.
func UpdateSkillProgress(skillID string, progress float64) Action {
	return Action{Type: ActionUpdateSkillProgress, SkillID: skillID, Progress: progress}
}

// SetStreak sets the current streak.
func SetStreak(days int) Action {
	return Action{Type: ActionSetStreak, Streak: days}
}

// UpdateAchievements replaces the achievement list.
func UpdateAchievements(achievements []models.Achievement) Action {
	return Action{Type: ActionUpdateAchievements, Achievements: achievements}
}

// ResetState returns to InitialState.
func ResetState() Action {
	return Action{Type: ActionResetState}
}

// Reduce applies a to s. now stamps LastUpdated on progress changes. Unknown
// actions return s unchanged.
func Reduce(s State, a Action, now time.Time) State {
	switch a.Type {
	case ActionSetLoading:
		s.Loading = a.Loading
		s.Error = ""

	case ActionSetError:
		s.Error = a.Error
		s.Loading = false

	case ActionUpdateProgress:
		s.OverallProgress = models.ClampProgress(a.Progress)
		s.LastUpdated = now

	case ActionUpdateSkillProgress:
		skills := make(map[string]float64, len(s.SkillProgress)+1)
		for id, p := range s.SkillProgress {
			skills[id] = p
		}
		skills[a.SkillID] = models.ClampProgress(a.Progress)
		s.SkillProgress = skills
		s.LastUpdated = now

	case ActionSetStreak:
		s.CurrentStreak = a.Streak

	case ActionUpdateAchievements:
		achievements := make([]models.Achievement, len(a.Achievements))
		copy(achievements, a.Achievements)
		s.Achievements = achievements

	case ActionResetState:
		return InitialState()
	}

	return s
}
