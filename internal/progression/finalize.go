package progression

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/storage"
)

// ProfileBadgeAwards is one participant's outcome from finalizing a session.
// Every participant gets an entry, even with no new badges, so clients can
// tell a replay apart from a first play that earned nothing.
type ProfileBadgeAwards struct {
	ProfileID     string              `json:"profile_id"`
	ProfileName   string              `json:"profile_name"`
	NewBadges     []scoring.BadgeView `json:"new_badges"`
	AlreadyPlayed bool                `json:"already_played"`
}

// FinalizeResult is returned to whoever requested the finalize
type FinalizeResult struct {
	SessionID string               `json:"session_id"`
	Awards    []ProfileBadgeAwards `json:"awards"`
}

// ProfilesWithNewBadges counts participants that earned at least one badge
func (r *FinalizeResult) ProfilesWithNewBadges() int {
	n := 0
	for _, a := range r.Awards {
		if len(a.NewBadges) > 0 {
			n++
		}
	}
	return n
}

// FinalizeStore is the storage Finalizer reads directly
type FinalizeStore interface {
	storage.SessionRepository
	storage.ProfileRepository
	storage.ScoreRepository
}

// Finalizer closes out a session: it scores each participant once and awards
// badges from their cumulative totals.
type Finalizer struct {
	store   FinalizeStore
	scoring *AxisScoringService
	badges  *BadgeAwardingService
	logger  *slog.Logger
}

func NewFinalizer(store FinalizeStore, scorer *AxisScoringService, badges *BadgeAwardingService, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		store:   store,
		scoring: scorer,
		badges:  badges,
		logger:  logger,
	}
}

// Handle finalizes a session. Missing sessions and profiles are skipped, not
// errors; storage failures are returned. Each step commits on its own, so a
// partially processed session can be finalized again safely.
func (f *Finalizer) Handle(ctx context.Context, sessionID string) (*FinalizeResult, error) {
	result := &FinalizeResult{
		SessionID: sessionID,
		Awards:    make([]ProfileBadgeAwards, 0),
	}

	gs, err := f.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if gs == nil {
		f.logger.Warn("Session not found for finalize", "session_id", sessionID)
		return result, nil
	}

	for _, profileID := range gs.ParticipantProfileIDs() {
		profile, err := f.store.GetProfile(ctx, profileID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile %s: %w", profileID, err)
		}
		if profile == nil {
			f.logger.Warn("Profile not found, skipping", "session_id", sessionID, "profile_id", profileID)
			continue
		}

		scored, err := f.scoring.ScoreSession(ctx, gs, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to score profile %s: %w", profileID, err)
		}

		history, err := f.store.GetScoresByProfile(ctx, profile.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load scores for profile %s: %w", profileID, err)
		}
		totals := scoring.CumulativeTotals(history)

		badges, err := f.badges.AwardBadges(ctx, profile, totals)
		if err != nil {
			return nil, fmt.Errorf("failed to award badges for profile %s: %w", profileID, err)
		}

		views := make([]scoring.BadgeView, 0, len(badges))
		for _, b := range badges {
			views = append(views, b.View())
		}

		result.Awards = append(result.Awards, ProfileBadgeAwards{
			ProfileID:     profile.ID,
			ProfileName:   profile.Name,
			NewBadges:     views,
			AlreadyPlayed: scored.AlreadyPlayed(),
		})

		f.logger.Debug("Finalized profile",
			"session_id", sessionID,
			"profile_id", profile.ID,
			"outcome", scored.Outcome.String(),
			"new_badges", len(views))
	}

	f.logger.Info("Finalized session",
		"session_id", sessionID,
		"profiles", len(result.Awards),
		"profiles_with_new_badges", result.ProfilesWithNewBadges())
	return result, nil
}
