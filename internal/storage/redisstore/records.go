package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jwebster45206/compass-engine/pkg/compass"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
)

func sessionKey(id string) string {
	return "session:" + id
}

func profileKey(id string) string {
	return "profile:" + id
}

func scoreKey(profileID, scenarioID string) string {
	return fmt.Sprintf("score:%s:%s", profileID, scenarioID)
}

func profileScoresKey(profileID string) string {
	return "profile-scores:" + profileID
}

func userBadgeKey(profileID, configID string) string {
	return fmt.Sprintf("user-badge:%s:%s", profileID, configID)
}

func profileBadgesKey(profileID string) string {
	return "profile-badges:" + profileID
}

// Session operations

func (r *RedisStorage) GetSession(ctx context.Context, id string) (*session.GameSession, error) {
	var gs session.GameSession
	found, err := r.getJSON(ctx, sessionKey(id), &gs)
	if err != nil || !found {
		return nil, err
	}
	return &gs, nil
}

func (r *RedisStorage) UpdateSession(ctx context.Context, gs *session.GameSession) error {
	if gs == nil {
		return errors.New("session cannot be nil")
	}
	gs.UpdatedAt = time.Now()
	return r.stageJSON(sessionKey(gs.ID), gs, false, "", "")
}

// Profile operations

func (r *RedisStorage) GetProfile(ctx context.Context, id string) (*scoring.Profile, error) {
	var p scoring.Profile
	found, err := r.getJSON(ctx, profileKey(id), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (r *RedisStorage) SaveProfile(ctx context.Context, p *scoring.Profile) error {
	if p == nil {
		return errors.New("profile cannot be nil")
	}
	return r.stageJSON(profileKey(p.ID), p, false, "", "")
}

// Score operations

func (r *RedisStorage) GetScore(ctx context.Context, profileID, scenarioID string) (*scoring.PlayerScenarioScore, error) {
	var s scoring.PlayerScenarioScore
	found, err := r.getJSON(ctx, scoreKey(profileID, scenarioID), &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStorage) GetScoresByProfile(ctx context.Context, profileID string) ([]*scoring.PlayerScenarioScore, error) {
	scenarioIDs, err := r.client.SMembers(ctx, profileScoresKey(profileID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scores for profile %s: %w", profileID, err)
	}
	if len(scenarioIDs) == 0 {
		return []*scoring.PlayerScenarioScore{}, nil
	}

	keys := make([]string, len(scenarioIDs))
	for i, scenarioID := range scenarioIDs {
		keys[i] = scoreKey(profileID, scenarioID)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load scores for profile %s: %w", profileID, err)
	}

	scores := make([]*scoring.PlayerScenarioScore, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record
			r.logger.Warn("Score index points at missing record", "key", keys[i])
			continue
		}
		var s scoring.PlayerScenarioScore
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", keys[i], err)
		}
		scores = append(scores, &s)
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].CreatedAt.Before(scores[j].CreatedAt) })
	return scores, nil
}

func (r *RedisStorage) AddScore(ctx context.Context, s *scoring.PlayerScenarioScore) error {
	if s == nil {
		return errors.New("score cannot be nil")
	}
	return r.stageJSON(scoreKey(s.ProfileID, s.ScenarioID), s, true, profileScoresKey(s.ProfileID), s.ScenarioID)
}

// Badge configuration operations

func (r *RedisStorage) ListBadgeConfigurations(ctx context.Context) ([]*scoring.BadgeConfiguration, error) {
	configs, err := r.badgeCatalogue()
	if err != nil {
		return nil, err
	}
	out := make([]*scoring.BadgeConfiguration, len(configs))
	copy(out, configs)
	return out, nil
}

func (r *RedisStorage) ListBadgeConfigurationsByAxis(ctx context.Context, axis string) ([]*scoring.BadgeConfiguration, error) {
	configs, err := r.badgeCatalogue()
	if err != nil {
		return nil, err
	}
	var out []*scoring.BadgeConfiguration
	for _, cfg := range configs {
		if compass.SameAxis(cfg.Axis, axis) {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// User badge operations

func (r *RedisStorage) GetUserBadge(ctx context.Context, profileID, badgeConfigurationID string) (*scoring.UserBadge, error) {
	var b scoring.UserBadge
	found, err := r.getJSON(ctx, userBadgeKey(profileID, badgeConfigurationID), &b)
	if err != nil || !found {
		return nil, err
	}
	return &b, nil
}

func (r *RedisStorage) ListUserBadges(ctx context.Context, profileID string) ([]*scoring.UserBadge, error) {
	configIDs, err := r.client.SMembers(ctx, profileBadgesKey(profileID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list badges for profile %s: %w", profileID, err)
	}
	sort.Strings(configIDs)

	badges := make([]*scoring.UserBadge, 0, len(configIDs))
	for _, configID := range configIDs {
		b, err := r.GetUserBadge(ctx, profileID, configID)
		if err != nil {
			return nil, err
		}
		if b != nil {
			badges = append(badges, b)
		}
	}
	return badges, nil
}

func (r *RedisStorage) AddUserBadge(ctx context.Context, b *scoring.UserBadge) error {
	if b == nil {
		return errors.New("badge cannot be nil")
	}
	return r.stageJSON(userBadgeKey(b.ProfileID, b.BadgeConfigurationID), b, true, profileBadgesKey(b.ProfileID), b.BadgeConfigurationID)
}
