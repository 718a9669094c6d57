package progression

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwebster45206/compass-engine/pkg/compass"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
	"github.com/jwebster45206/compass-engine/pkg/storage"
)

// Outcome describes what ScoreSession did for a profile
type Outcome int

const (
	// OutcomeScored means a new score record was written
	OutcomeScored Outcome = iota
	// OutcomeAlreadyScored means the profile already has a score for the scenario
	OutcomeAlreadyScored
	// OutcomeSkipped means required session or profile data was missing
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeScored:
		return "scored"
	case OutcomeAlreadyScored:
		return "already_scored"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ScoreResult is the result of scoring one profile for one session.
// Score is set only when Outcome is OutcomeScored.
type ScoreResult struct {
	Outcome Outcome
	Score   *scoring.PlayerScenarioScore
}

// AlreadyPlayed reports whether no new score was produced.
// Skipped sessions count as already played, matching the replay signal.
func (r ScoreResult) AlreadyPlayed() bool {
	return r.Outcome != OutcomeScored
}

// ScoreStore is the storage AxisScoringService needs
type ScoreStore interface {
	storage.ScoreRepository
	storage.UnitOfWork
}

// AxisScoringService turns a finished session into a profile's first-play score
type AxisScoringService struct {
	store  ScoreStore
	logger *slog.Logger
}

func NewAxisScoringService(store ScoreStore, logger *slog.Logger) *AxisScoringService {
	return &AxisScoringService{
		store:  store,
		logger: logger,
	}
}

// ScoreSession records the per-axis score of gs for profile, exactly once per
// (profile, scenario). Replays return OutcomeAlreadyScored without writing.
func (s *AxisScoringService) ScoreSession(ctx context.Context, gs *session.GameSession, profile *scoring.Profile) (ScoreResult, error) {
	if gs == nil || profile == nil {
		s.logger.Warn("Skipping scoring, session or profile missing")
		return ScoreResult{Outcome: OutcomeSkipped}, nil
	}
	if strings.TrimSpace(gs.ScenarioID) == "" {
		s.logger.Warn("Skipping scoring, session has no scenario", "session_id", gs.ID, "profile_id", profile.ID)
		return ScoreResult{Outcome: OutcomeSkipped}, nil
	}

	existing, err := s.store.GetScore(ctx, profile.ID, gs.ScenarioID)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("failed to look up score: %w", err)
	}
	if existing != nil {
		s.logger.Info("Scenario already scored for profile",
			"session_id", gs.ID,
			"profile_id", profile.ID,
			"scenario_id", gs.ScenarioID,
			"scored_session_id", existing.GameSessionID)
		return ScoreResult{Outcome: OutcomeAlreadyScored}, nil
	}

	score := scoring.NewPlayerScenarioScore(profile.ID, gs.ScenarioID, gs.ID, compass.NetTotals(gs.CompassValues))
	if err := s.store.AddScore(ctx, score); err != nil {
		s.store.DiscardChanges()
		return ScoreResult{}, fmt.Errorf("failed to add score: %w", err)
	}
	if err := s.store.SaveChanges(ctx); err != nil {
		return ScoreResult{}, fmt.Errorf("failed to save score: %w", err)
	}

	s.logger.Info("Scored session for profile",
		"session_id", gs.ID,
		"profile_id", profile.ID,
		"scenario_id", gs.ScenarioID,
		"axes", len(score.AxisScores))
	return ScoreResult{Outcome: OutcomeScored, Score: score}, nil
}
