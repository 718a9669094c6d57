package storage

import (
	"context"
	"errors"

	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
)

// ErrAlreadyExists is returned when a write violates a uniqueness constraint,
// e.g. a second score for the same (profile, scenario).
var ErrAlreadyExists = errors.New("record already exists")

// Get methods return nil, nil when the record does not exist.
// Add and Update methods stage writes; nothing is durable until SaveChanges.

// SessionRepository loads and updates game sessions
type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*session.GameSession, error)
	UpdateSession(ctx context.Context, s *session.GameSession) error
}

// ProfileRepository loads player profiles
type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*scoring.Profile, error)
	SaveProfile(ctx context.Context, p *scoring.Profile) error
}

// ScoreRepository holds first-play scores per (profile, scenario)
type ScoreRepository interface {
	GetScoresByProfile(ctx context.Context, profileID string) ([]*scoring.PlayerScenarioScore, error)
	GetScore(ctx context.Context, profileID, scenarioID string) (*scoring.PlayerScenarioScore, error)
	AddScore(ctx context.Context, score *scoring.PlayerScenarioScore) error
}

// BadgeConfigRepository exposes the externally managed badge catalogue
type BadgeConfigRepository interface {
	ListBadgeConfigurations(ctx context.Context) ([]*scoring.BadgeConfiguration, error)
	ListBadgeConfigurationsByAxis(ctx context.Context, axis string) ([]*scoring.BadgeConfiguration, error)
}

// UserBadgeRepository holds badges awarded to profiles
type UserBadgeRepository interface {
	GetUserBadge(ctx context.Context, profileID, badgeConfigurationID string) (*scoring.UserBadge, error)
	ListUserBadges(ctx context.Context, profileID string) ([]*scoring.UserBadge, error)
	AddUserBadge(ctx context.Context, badge *scoring.UserBadge) error
}

// UnitOfWork commits or drops every staged write. Callers discard after a
// failed operation so its writes never ride along with a later commit.
type UnitOfWork interface {
	SaveChanges(ctx context.Context) error
	DiscardChanges()
}

// Storage combines every repository with health and lifecycle methods
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	SessionRepository
	ProfileRepository
	ScoreRepository
	BadgeConfigRepository
	UserBadgeRepository
	UnitOfWork
}
