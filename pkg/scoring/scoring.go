package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/compass-engine/pkg/compass"
)

// Profile is a player profile. Only the fields scoring needs are modelled.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlayerScenarioScore records a profile's first scored play of a scenario.
// There is at most one per (ProfileID, ScenarioID).
type PlayerScenarioScore struct {
	ID            string         `json:"id"`
	ProfileID     string         `json:"profile_id"`
	ScenarioID    string         `json:"scenario_id"`
	GameSessionID string         `json:"game_session_id"`
	AxisScores    compass.Totals `json:"axis_scores"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewPlayerScenarioScore builds a score record with a fresh id
func NewPlayerScenarioScore(profileID, scenarioID, sessionID string, axisScores compass.Totals) *PlayerScenarioScore {
	return &PlayerScenarioScore{
		ID:            uuid.New().String(),
		ProfileID:     profileID,
		ScenarioID:    scenarioID,
		GameSessionID: sessionID,
		AxisScores:    axisScores,
		CreatedAt:     time.Now().UTC(),
	}
}

// CumulativeTotals sums axis scores across all of a profile's scored sessions
func CumulativeTotals(scores []*PlayerScenarioScore) compass.Totals {
	totals := make(compass.Totals)
	for _, s := range scores {
		if s == nil {
			continue
		}
		totals.Merge(s.AxisScores)
	}
	return totals
}

// BadgeConfiguration defines a profile-level badge unlocked by a cumulative axis total.
type BadgeConfiguration struct {
	ID        string  `json:"id"`
	Axis      string  `json:"axis"`
	Threshold float64 `json:"threshold"`
	Name      string  `json:"name"`
	Message   string  `json:"message,omitempty"`
	ImageID   string  `json:"image_id,omitempty"`
}

// Validate checks a configuration is usable for awarding
func (b *BadgeConfiguration) Validate() error {
	var errs []error
	if strings.TrimSpace(b.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(b.Axis) == "" {
		errs = append(errs, errors.New("axis is required"))
	}
	if strings.TrimSpace(b.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if math.IsNaN(b.Threshold) || math.IsInf(b.Threshold, 0) || b.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("threshold must be a positive number, got %v", b.Threshold))
	}
	if len(errs) > 0 {
		return fmt.Errorf("badge configuration %q: %w", b.ID, errors.Join(errs...))
	}
	return nil
}

// Reached reports whether a total crosses this badge's threshold in either direction
func (b *BadgeConfiguration) Reached(total float64) bool {
	return math.Abs(total) >= b.Threshold
}

// UserBadge is a badge held by a profile. There is at most one per
// (ProfileID, BadgeConfigurationID).
type UserBadge struct {
	ID                   string    `json:"id"`
	ProfileID            string    `json:"profile_id"`
	BadgeConfigurationID string    `json:"badge_configuration_id"`
	BadgeName            string    `json:"badge_name"`
	BadgeMessage         string    `json:"badge_message,omitempty"`
	Axis                 string    `json:"axis"`
	TriggerValue         float64   `json:"trigger_value"`
	Threshold            float64   `json:"threshold"`
	ImageID              string    `json:"image_id,omitempty"`
	EarnedAt             time.Time `json:"earned_at"`
}

// NewUserBadge awards cfg to a profile at the given cumulative value
func NewUserBadge(profileID string, cfg *BadgeConfiguration, triggerValue float64) *UserBadge {
	return &UserBadge{
		ID:                   uuid.New().String(),
		ProfileID:            profileID,
		BadgeConfigurationID: cfg.ID,
		BadgeName:            cfg.Name,
		BadgeMessage:         cfg.Message,
		Axis:                 compass.NormalizeAxis(cfg.Axis),
		TriggerValue:         triggerValue,
		Threshold:            cfg.Threshold,
		ImageID:              cfg.ImageID,
		EarnedAt:             time.Now().UTC(),
	}
}

// BadgeView is the client-facing shape of a newly earned badge
type BadgeView struct {
	ID                   string    `json:"id"`
	BadgeConfigurationID string    `json:"badge_configuration_id"`
	Name                 string    `json:"name"`
	Message              string    `json:"message,omitempty"`
	Axis                 string    `json:"axis"`
	TriggerValue         float64   `json:"trigger_value"`
	ImageID              string    `json:"image_id,omitempty"`
	EarnedAt             time.Time `json:"earned_at"`
}

func (u *UserBadge) View() BadgeView {
	return BadgeView{
		ID:                   u.ID,
		BadgeConfigurationID: u.BadgeConfigurationID,
		Name:                 u.BadgeName,
		Message:              u.BadgeMessage,
		Axis:                 u.Axis,
		TriggerValue:         u.TriggerValue,
		ImageID:              u.ImageID,
		EarnedAt:             u.EarnedAt,
	}
}
