package models

import "time"

// AnalyticsEvent is one usage event, as posted to /events.
type AnalyticsEvent struct {
	Event       string                 `json:"event" validate:"required"`
	Timestamp   time.Time              `json:"timestamp" validate:"required"`
	SessionID   string                 `json:"sessionId" validate:"required"`
	UserID      string                 `json:"userId" validate:"required"`
	AppID       string                 `json:"appId,omitempty"`
	Platform    string                 `json:"platform"`
	Environment string                 `json:"environment,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
}
