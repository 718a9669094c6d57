package session

import (
	"time"

	"github.com/jwebster45206/compass-engine/pkg/compass"
)

// AchievementType identifies the rule that produced a session achievement
type AchievementType string

const (
	AchievementFirstChoice      AchievementType = "first_choice"
	AchievementSessionComplete  AchievementType = "session_complete"
	AchievementCompassThreshold AchievementType = "compass_threshold"
)

// Achievement is an award earned within a single session.
type Achievement struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Type        AchievementType `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	CompassAxis string          `json:"compass_axis,omitempty"`
	Threshold   float64         `json:"threshold,omitempty"`
	EarnedAt    time.Time       `json:"earned_at"`
}

// AchievementID builds the deterministic id for an achievement kind.
// At most one achievement exists per (type, axis) in a session, so the id
// doubles as the dedup key.
func AchievementID(sessionID string, kind AchievementType, axis string) string {
	id := sessionID + "_" + string(kind)
	if axis = compass.NormalizeAxis(axis); axis != "" {
		id += "_" + axis
	}
	return id
}
