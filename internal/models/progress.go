package models

import "time"

// Achievement types.
const (
	AchievementSkillCompletion   = "skill_completion"
	AchievementStreakMilestone   = "streak_milestone"
	AchievementQuizPerfect       = "quiz_perfect"
	AchievementFirstContribution = "first_contribution"
)

// Skill levels.
const (
	SkillBeginner     = "Beginner"
	SkillIntermediate = "Intermediate"
	SkillAdvanced     = "Advanced"
	SkillExpert       = "Expert"
)

// Achievement earned by a user.
type Achievement struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	EarnedAt time.Time `json:"earned_at"`
}

// SkillProgress is the completion percentage of one skill.
type SkillProgress struct {
	SkillID  string  `json:"skill_id"`
	Progress float64 `json:"progress"`
}

// OverallProgress is the mean completion across skills.
type OverallProgress struct {
	Progress float64 `json:"progress"`
}

// Streak counts consecutive active days.
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// ClampProgress bounds p to [0, 100].
func ClampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
