package progression

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jwebster45206/compass-engine/pkg/compass"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/storage"
)

// BadgeStore is the storage BadgeAwardingService needs
type BadgeStore interface {
	storage.BadgeConfigRepository
	storage.UserBadgeRepository
	storage.UnitOfWork
}

// BadgeAwardingService compares a profile's cumulative axis totals against
// the badge catalogue and issues badges the profile does not hold yet.
type BadgeAwardingService struct {
	store  BadgeStore
	logger *slog.Logger
}

func NewBadgeAwardingService(store BadgeStore, logger *slog.Logger) *BadgeAwardingService {
	return &BadgeAwardingService{
		store:  store,
		logger: logger,
	}
}

// AwardBadges issues every badge whose threshold |totals[axis]| reaches and
// which the profile does not already hold. Calling it again with the same
// totals returns no badges.
func (s *BadgeAwardingService) AwardBadges(ctx context.Context, profile *scoring.Profile, totals compass.Totals) ([]*scoring.UserBadge, error) {
	if profile == nil {
		return nil, nil
	}

	configs, err := s.store.ListBadgeConfigurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load badge configurations: %w", err)
	}
	sortConfigurations(configs)

	awarded := make([]*scoring.UserBadge, 0)
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if cfg == nil || seen[cfg.ID] {
			continue
		}
		seen[cfg.ID] = true

		total := totals.Get(cfg.Axis)
		if !cfg.Reached(total) {
			continue
		}

		held, err := s.store.GetUserBadge(ctx, profile.ID, cfg.ID)
		if err != nil {
			// Badges staged earlier in the loop must not outlive this call
			s.store.DiscardChanges()
			return nil, fmt.Errorf("failed to check badge %s: %w", cfg.ID, err)
		}
		if held != nil {
			continue
		}

		badge := scoring.NewUserBadge(profile.ID, cfg, total)
		if err := s.store.AddUserBadge(ctx, badge); err != nil {
			s.store.DiscardChanges()
			return nil, fmt.Errorf("failed to add badge %s: %w", cfg.ID, err)
		}
		awarded = append(awarded, badge)
	}

	if len(awarded) == 0 {
		return awarded, nil
	}
	if err := s.store.SaveChanges(ctx); err != nil {
		return nil, fmt.Errorf("failed to save badges: %w", err)
	}

	s.logger.Info("Awarded badges",
		"profile_id", profile.ID,
		"count", len(awarded))
	return awarded, nil
}

func sortConfigurations(configs []*scoring.BadgeConfiguration) {
	sort.SliceStable(configs, func(i, j int) bool {
		a, b := configs[i], configs[j]
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		if ax, bx := compass.NormalizeAxis(a.Axis), compass.NormalizeAxis(b.Axis); ax != bx {
			return ax < bx
		}
		if a.Threshold != b.Threshold {
			return a.Threshold < b.Threshold
		}
		return a.ID < b.ID
	})
}

// ListProfileBadges returns every badge a profile holds
func (s *BadgeAwardingService) ListProfileBadges(ctx context.Context, profileID string) ([]scoring.BadgeView, error) {
	held, err := s.store.ListUserBadges(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges for profile %s: %w", profileID, err)
	}
	views := make([]scoring.BadgeView, 0, len(held))
	for _, b := range held {
		views = append(views, b.View())
	}
	return views, nil
}
