package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/transport"
)

// Client calls the progress endpoints.
type Client struct {
	transport transport.Transport
	logger    *events.Logger
}

// NewClient creates a progress client.
func NewClient(t transport.Transport, logger *events.Logger) *Client {
	return &Client{
		transport: t,
		logger:    logger.WithField("service", "progress"),
	}
}

func progressPath(userID string, elems ...string) string {
	path := "/progress/" + url.PathEscape(userID)
	for _, e := range elems {
		path += "/" + url.PathEscape(e)
	}
	return path
}

// OverallProgress fetches the mean completion across all skills.
func (c *Client) OverallProgress(ctx context.Context, userID string) (float64, error) {
	resp, err := c.transport.GetJSON(ctx, progressPath(userID, "overall"), nil)
	if err != nil {
		return 0, fmt.Errorf("get overall progress: %w", err)
	}

	return getFloat(resp, "progress"), nil
}

// SkillProgress fetches one skill.
func (c *Client) SkillProgress(ctx context.Context, userID, skillID string) (models.SkillProgress, error) {
	resp, err := c.transport.GetJSON(ctx, progressPath(userID, "skills", skillID), nil)
	if err != nil {
		return models.SkillProgress{}, fmt.Errorf("get skill progress: %w", err)
	}

	return models.SkillProgress{
		SkillID:  skillID,
		Progress: getFloat(resp, "progress"),
	}, nil
}

// Skills fetches progress for every skill the user has started.
func (c *Client) Skills(ctx context.Context, userID string) ([]models.SkillProgress, error) {
	resp, err := c.transport.GetJSON(ctx, progressPath(userID, "skills"), nil)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}

	var skills []models.SkillProgress
	if err := decodeField(resp, "skills", &skills); err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	return skills, nil
}

// UpdateSkillProgress stores a new completion value for skillID.
func (c *Client) UpdateSkillProgress(ctx context.Context, userID, skillID string, progress float64) error {
	c.logger.WithFields(map[string]interface{}{
		"skill_id": skillID,
		"progress": progress,
	}).Debug("Updating skill progress")

	_, err := c.transport.PutJSON(ctx, progressPath(userID, "skills", skillID), map[string]interface{}{
		"progress": progress,
	})
	if err != nil {
		return fmt.Errorf("update skill progress: %w", err)
	}
	return nil
}

// CurrentStreak fetches the current run of active days.
func (c *Client) CurrentStreak(ctx context.Context, userID string) (int, error) {
	resp, err := c.transport.GetJSON(ctx, progressPath(userID, "streak"), nil)
	if err != nil {
		return 0, fmt.Errorf("get streak: %w", err)
	}
	return getInt(resp, "current"), nil
}

// LongestStreak fetches the longest run of active days.
func (c *Client) LongestStreak(ctx context.Context, userID string) (int, error) {
	resp, err := c.transport.GetJSON(ctx, progressPath(userID, "streak", "longest"), nil)
	if err != nil {
		return 0, fmt.Errorf("get longest streak: %w", err)
	}
	return getInt(resp, "longest"), nil
}

// Achievements fetches everything the user has earned.
func (c *Client) Achievements(ctx context.Context, userID string) ([]models.Achievement, error) {
	resp, err := c.transport.GetJSON(ctx, progressPath(userID, "achievements"), nil)
	if err != nil {
		return nil, fmt.Errorf("get achievements: %w", err)
	}

	var achievements []models.Achievement
	if err := decodeField(resp, "achievements", &achievements); err != nil {
		return nil, fmt.Errorf("get achievements: %w", err)
	}
	return achievements, nil
}

// Helper functions

func getFloat(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

// decodeField re-decodes m[key] into dst. A missing key leaves dst untouched.
func decodeField(m map[string]interface{}, key string, dst interface{}) error {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}
