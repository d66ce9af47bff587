package mockapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/castleatlas/atlas/internal/models"
)

type userProgress struct {
	skills       map[string]float64
	streak       models.Streak
	achievements []models.Achievement
}

func newUserProgress() *userProgress {
	return &userProgress{skills: make(map[string]float64)}
}

func seedProgress(now time.Time) *userProgress {
	p := newUserProgress()
	p.skills["history"] = 60
	p.skills["architecture"] = 35
	p.skills["heraldry"] = 100
	p.streak = models.Streak{Current: 3, Longest: 7}
	p.achievements = []models.Achievement{
		{
			ID:       uuid.NewString(),
			Type:     models.AchievementSkillCompletion,
			Title:    "Completed heraldry",
			EarnedAt: now.Add(-48 * time.Hour).UTC(),
		},
		{
			ID:       uuid.NewString(),
			Type:     models.AchievementStreakMilestone,
			Title:    "7 day streak",
			EarnedAt: now.Add(-24 * time.Hour).UTC(),
		},
	}
	return p
}

// overall is the mean of all skill progress, or 0 with no skills.
func (p *userProgress) overall() float64 {
	if len(p.skills) == 0 {
		return 0
	}

	var sum float64
	for _, v := range p.skills {
		sum += v
	}
	return sum / float64(len(p.skills))
}

// routeProgress serves /progress/{user}/... rest holds everything after
// "/progress/".
func (s *Server) routeProgress(token, method, rest string, payload interface{}) (interface{}, error) {
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		return nil, apiError(http.StatusNotFound, "Not found")
	}

	acct, err := s.authenticate(token)
	if err != nil {
		return nil, err
	}
	if acct.user.ID != parts[0] {
		return nil, apiError(http.StatusForbidden, models.MsgUnauthorized)
	}

	p, ok := s.progress[acct.user.ID]
	if !ok {
		p = newUserProgress()
		s.progress[acct.user.ID] = p
	}

	switch {
	case method == http.MethodGet && len(parts) == 2 && parts[1] == "overall":
		return models.OverallProgress{Progress: p.overall()}, nil

	case method == http.MethodGet && len(parts) == 2 && parts[1] == "streak":
		return p.streak, nil

	case method == http.MethodGet && len(parts) == 3 && parts[1] == "streak" && parts[2] == "longest":
		return map[string]int{"longest": p.streak.Longest}, nil

	case method == http.MethodGet && len(parts) == 2 && parts[1] == "achievements":
		return map[string]interface{}{"achievements": p.achievements}, nil

	case method == http.MethodGet && len(parts) == 2 && parts[1] == "skills":
		return map[string]interface{}{"skills": p.skillList()}, nil

	case len(parts) == 3 && parts[1] == "skills" && parts[2] != "":
		switch method {
		case http.MethodGet:
			v, ok := p.skills[parts[2]]
			if !ok {
				return nil, apiError(http.StatusNotFound, "Skill not found")
			}
			return models.SkillProgress{SkillID: parts[2], Progress: v}, nil
		case http.MethodPut:
			return s.updateSkill(acct.user.ID, p, parts[2], payload)
		}
	}

	return nil, apiError(http.StatusNotFound, "Not found")
}

func (p *userProgress) skillList() []models.SkillProgress {
	list := make([]models.SkillProgress, 0, len(p.skills))
	for id, v := range p.skills {
		list = append(list, models.SkillProgress{SkillID: id, Progress: v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SkillID < list[j].SkillID })
	return list
}

func (s *Server) updateSkill(userID string, p *userProgress, skillID string, payload interface{}) (interface{}, error) {
	var req struct {
		Progress *float64 `json:"progress"`
	}
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if req.Progress == nil {
		return nil, apiError(http.StatusBadRequest, models.MsgRequiredField)
	}

	v := *req.Progress
	if v < 0 || v > 100 {
		return nil, apiError(http.StatusBadRequest, "Progress must be between 0 and 100.")
	}

	prev := p.skills[skillID]
	p.skills[skillID] = v

	if v == 100 && prev < 100 {
		achievement := models.Achievement{
			ID:       uuid.NewString(),
			Type:     models.AchievementSkillCompletion,
			Title:    fmt.Sprintf("Completed %s", skillID),
			EarnedAt: s.now().UTC(),
		}
		p.achievements = append(p.achievements, achievement)

		s.push(userID, Notification{
			Type:    "success",
			Title:   "Achievement unlocked",
			Message: achievement.Title,
		})
	}

	return models.SkillProgress{SkillID: skillID, Progress: v}, nil
}
