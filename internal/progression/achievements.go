package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jwebster45206/compass-engine/pkg/compass"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
	"github.com/jwebster45206/compass-engine/pkg/storage"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultCompassThreshold applies to axes with no badge configuration.
// It is independent of the badge thresholds used for profile badges.
const DefaultCompassThreshold = 3.0

const (
	firstChoiceTitle     = "First Steps"
	sessionCompleteTitle = "Adventure Complete"
)

var ErrInvalidSessionID = errors.New("session id is required")

// AchievementStore is the storage AchievementEvaluator needs
type AchievementStore interface {
	storage.SessionRepository
	storage.BadgeConfigRepository
	storage.UnitOfWork
}

// AchievementEvaluator awards in-session achievements after each session mutation
type AchievementEvaluator struct {
	store            AchievementStore
	logger           *slog.Logger
	defaultThreshold float64
	now              func() time.Time
}

// NewAchievementEvaluator creates an evaluator. A non-positive defaultThreshold
// falls back to DefaultCompassThreshold.
func NewAchievementEvaluator(store AchievementStore, logger *slog.Logger, defaultThreshold float64) *AchievementEvaluator {
	if defaultThreshold <= 0 || math.IsNaN(defaultThreshold) {
		defaultThreshold = DefaultCompassThreshold
	}
	return &AchievementEvaluator{
		store:            store,
		logger:           logger,
		defaultThreshold: defaultThreshold,
		now:              time.Now,
	}
}

// Evaluate checks every achievement rule against the session's current state
// and returns the achievements that are new. The session is only written when
// something new was awarded.
func (e *AchievementEvaluator) Evaluate(ctx context.Context, sessionID string) ([]session.Achievement, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSessionID
	}

	gs, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if gs == nil {
		e.logger.Warn("Session not found for achievement check", "session_id", sessionID)
		return []session.Achievement{}, nil
	}

	earned := make([]session.Achievement, 0)
	award := func(a session.Achievement) {
		if gs.HasAchievement(a.ID) {
			return
		}
		gs.Achievements = append(gs.Achievements, a)
		earned = append(earned, a)
	}

	now := e.now().UTC()

	if len(gs.ChoiceHistory) > 0 {
		award(session.Achievement{
			ID:          session.AchievementID(gs.ID, session.AchievementFirstChoice, ""),
			SessionID:   gs.ID,
			Type:        session.AchievementFirstChoice,
			Title:       firstChoiceTitle,
			Description: "Made your first choice",
			EarnedAt:    now,
		})
	}

	if gs.Status == session.StatusCompleted {
		award(session.Achievement{
			ID:          session.AchievementID(gs.ID, session.AchievementSessionComplete, ""),
			SessionID:   gs.ID,
			Type:        session.AchievementSessionComplete,
			Title:       sessionCompleteTitle,
			Description: "Reached the end of the adventure",
			EarnedAt:    now,
		})
	}

	for _, axis := range gs.CompassValues.Axes() {
		tracking := gs.CompassValues[axis]
		if tracking == nil {
			continue
		}
		id := session.AchievementID(gs.ID, session.AchievementCompassThreshold, axis)
		if gs.HasAchievement(id) {
			continue
		}

		badge, threshold, err := e.thresholdFor(ctx, axis)
		if err != nil {
			return nil, err
		}
		if tracking.Magnitude() < threshold {
			continue
		}

		a := session.Achievement{
			ID:          id,
			SessionID:   gs.ID,
			Type:        session.AchievementCompassThreshold,
			Title:       axisTitle(axis) + " Milestone",
			Description: fmt.Sprintf("Reached %.1f on the %s axis", tracking.CurrentValue, axis),
			CompassAxis: axis,
			Threshold:   threshold,
			EarnedAt:    now,
		}
		if badge != nil {
			a.Title = badge.Name
			if badge.Message != "" {
				a.Description = badge.Message
			}
		}
		award(a)
	}

	if len(earned) == 0 {
		return earned, nil
	}

	gs.UpdatedAt = now
	if err := e.store.UpdateSession(ctx, gs); err != nil {
		e.store.DiscardChanges()
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if err := e.store.SaveChanges(ctx); err != nil {
		return nil, fmt.Errorf("failed to save achievements: %w", err)
	}

	e.logger.Info("Awarded session achievements",
		"session_id", gs.ID,
		"count", len(earned))
	return earned, nil
}

// thresholdFor resolves the threshold for an axis. When several badges are
// configured for the axis the lowest threshold wins.
func (e *AchievementEvaluator) thresholdFor(ctx context.Context, axis string) (*scoring.BadgeConfiguration, float64, error) {
	configs, err := e.store.ListBadgeConfigurationsByAxis(ctx, axis)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load badge configuration for axis %s: %w", axis, err)
	}

	var best *scoring.BadgeConfiguration
	for _, cfg := range configs {
		if cfg == nil || cfg.Threshold <= 0 || !compass.SameAxis(cfg.Axis, axis) {
			continue
		}
		if best == nil || cfg.Threshold < best.Threshold {
			best = cfg
		}
	}
	if best == nil {
		return nil, e.defaultThreshold, nil
	}
	return best, best.Threshold, nil
}

func axisTitle(axis string) string {
	return cases.Title(language.English).String(axis)
}
