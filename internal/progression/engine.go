package progression

import (
	"context"
	"log/slog"

	"github.com/jwebster45206/compass-engine/pkg/session"
	"github.com/jwebster45206/compass-engine/pkg/storage"
)

// Options tunes the engine
type Options struct {
	// DefaultCompassThreshold is used for achievements on axes without a badge configuration
	DefaultCompassThreshold float64
}

// Engine wires the progression services over one storage backend
type Engine struct {
	store storage.UnitOfWork

	Scoring      *AxisScoringService
	Achievements *AchievementEvaluator
	Badges       *BadgeAwardingService
	Finalizer    *Finalizer
}

func NewEngine(store storage.Storage, logger *slog.Logger, opts Options) *Engine {
	scorer := NewAxisScoringService(store, logger)
	badges := NewBadgeAwardingService(store, logger)
	return &Engine{
		store:        store,
		Scoring:      scorer,
		Achievements: NewAchievementEvaluator(store, logger, opts.DefaultCompassThreshold),
		Badges:       badges,
		Finalizer:    NewFinalizer(store, scorer, badges, logger),
	}
}

// EvaluateAchievements runs the achievement rules for one session. Each
// request starts and ends with an empty unit of work.
func (e *Engine) EvaluateAchievements(ctx context.Context, sessionID string) ([]session.Achievement, error) {
	e.store.DiscardChanges()
	earned, err := e.Achievements.Evaluate(ctx, sessionID)
	if err != nil {
		e.store.DiscardChanges()
	}
	return earned, err
}

// FinalizeSession scores and awards badges for every participant
func (e *Engine) FinalizeSession(ctx context.Context, sessionID string) (*FinalizeResult, error) {
	e.store.DiscardChanges()
	result, err := e.Finalizer.Handle(ctx, sessionID)
	if err != nil {
		e.store.DiscardChanges()
	}
	return result, err
}
