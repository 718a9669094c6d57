package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jwebster45206/compass-engine/pkg/compass"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
)

// GetSession loads a session, or returns nil when it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*session.GameSession, error) {
	var data string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT data FROM game_sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var gs session.GameSession
	if err := json.Unmarshal([]byte(data), &gs); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &gs, nil
}

// UpdateSession stages an upsert of the whole session document.
func (s *Store) UpdateSession(ctx context.Context, gs *session.GameSession) error {
	if gs == nil {
		return errors.New("session cannot be nil")
	}
	gs.UpdatedAt = time.Now()
	data, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", gs.ID, err)
	}
	id, scenarioID, status, updatedAt := gs.ID, gs.ScenarioID, string(gs.Status), toMillis(gs.UpdatedAt)

	s.stage(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO game_sessions (id, scenario_id, status, data, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	scenario_id = excluded.scenario_id,
	status = excluded.status,
	data = excluded.data,
	updated_at = excluded.updated_at
`, id, scenarioID, status, string(data), updatedAt)
		if err != nil {
			return fmt.Errorf("put session %s: %w", id, err)
		}
		return nil
	})
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*scoring.Profile, error) {
	p := &scoring.Profile{}
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id, name FROM profiles WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p *scoring.Profile) error {
	if p == nil {
		return errors.New("profile cannot be nil")
	}
	id, name := p.ID, p.Name
	s.stage(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO profiles (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name
`, id, name)
		if err != nil {
			return fmt.Errorf("put profile %s: %w", id, err)
		}
		return nil
	})
	return nil
}

const scoreColumns = `id, profile_id, scenario_id, game_session_id, axis_scores, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*scoring.PlayerScenarioScore, error) {
	var (
		score     scoring.PlayerScenarioScore
		axis      string
		createdAt int64
	)
	if err := row.Scan(&score.ID, &score.ProfileID, &score.ScenarioID, &score.GameSessionID, &axis, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(axis), &score.AxisScores); err != nil {
		return nil, fmt.Errorf("decode axis scores for %s: %w", score.ID, err)
	}
	score.CreatedAt = fromMillis(createdAt)
	return &score, nil
}

func (s *Store) GetScore(ctx context.Context, profileID, scenarioID string) (*scoring.PlayerScenarioScore, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+scoreColumns+` FROM player_scenario_scores WHERE profile_id = ? AND scenario_id = ?`,
		profileID, scenarioID)
	score, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get score %s/%s: %w", profileID, scenarioID, err)
	}
	return score, nil
}

func (s *Store) GetScoresByProfile(ctx context.Context, profileID string) ([]*scoring.PlayerScenarioScore, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+scoreColumns+` FROM player_scenario_scores WHERE profile_id = ? ORDER BY created_at, id`,
		profileID)
	if err != nil {
		return nil, fmt.Errorf("list scores for %s: %w", profileID, err)
	}
	defer rows.Close()

	scores := make([]*scoring.PlayerScenarioScore, 0)
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return scores, nil
}

func (s *Store) AddScore(ctx context.Context, score *scoring.PlayerScenarioScore) error {
	if score == nil {
		return errors.New("score cannot be nil")
	}
	axisScores := score.AxisScores
	if axisScores == nil {
		axisScores = compass.Totals{}
	}
	axis, err := json.Marshal(axisScores)
	if err != nil {
		return fmt.Errorf("encode axis scores: %w", err)
	}
	rec := *score

	s.stage(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO player_scenario_scores (`+scoreColumns+`)
VALUES (?, ?, ?, ?, ?, ?)
`, rec.ID, rec.ProfileID, rec.ScenarioID, rec.GameSessionID, string(axis), toMillis(rec.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert score %s/%s: %w", rec.ProfileID, rec.ScenarioID, err)
		}
		return nil
	})
	return nil
}

const badgeConfigColumns = `id, axis, threshold, name, message, image_id`

func (s *Store) queryBadgeConfigurations(ctx context.Context, query string, args ...any) ([]*scoring.BadgeConfiguration, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list badge configurations: %w", err)
	}
	defer rows.Close()

	configs := make([]*scoring.BadgeConfiguration, 0)
	for rows.Next() {
		var cfg scoring.BadgeConfiguration
		if err := rows.Scan(&cfg.ID, &cfg.Axis, &cfg.Threshold, &cfg.Name, &cfg.Message, &cfg.ImageID); err != nil {
			return nil, fmt.Errorf("scan badge configuration: %w", err)
		}
		configs = append(configs, &cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate badge configurations: %w", err)
	}
	return configs, nil
}

func (s *Store) ListBadgeConfigurations(ctx context.Context) ([]*scoring.BadgeConfiguration, error) {
	return s.queryBadgeConfigurations(ctx,
		`SELECT `+badgeConfigColumns+` FROM badge_configurations ORDER BY id`)
}

func (s *Store) ListBadgeConfigurationsByAxis(ctx context.Context, axis string) ([]*scoring.BadgeConfiguration, error) {
	return s.queryBadgeConfigurations(ctx,
		`SELECT `+badgeConfigColumns+` FROM badge_configurations WHERE axis_key = ? ORDER BY threshold, id`,
		compass.NormalizeAxis(axis))
}

// SyncBadgeConfigurations replaces the badge catalogue with configs. It is
// applied immediately rather than staged.
func (s *Store) SyncBadgeConfigurations(ctx context.Context, configs []*scoring.BadgeConfiguration) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM badge_configurations`); err != nil {
		return fmt.Errorf("clear badge configurations: %w", err)
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO badge_configurations (id, axis, axis_key, threshold, name, message, image_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, cfg.ID, cfg.Axis, compass.NormalizeAxis(cfg.Axis), cfg.Threshold, cfg.Name, cfg.Message, cfg.ImageID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("duplicate badge id %q", cfg.ID)
			}
			return fmt.Errorf("insert badge configuration %s: %w", cfg.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("Synced badge configurations", "count", len(configs))
	return nil
}

const userBadgeColumns = `id, profile_id, badge_configuration_id, badge_name, badge_message, axis, trigger_value, threshold, image_id, earned_at`

func scanUserBadge(row rowScanner) (*scoring.UserBadge, error) {
	var (
		b        scoring.UserBadge
		earnedAt int64
	)
	if err := row.Scan(&b.ID, &b.ProfileID, &b.BadgeConfigurationID, &b.BadgeName, &b.BadgeMessage,
		&b.Axis, &b.TriggerValue, &b.Threshold, &b.ImageID, &earnedAt); err != nil {
		return nil, err
	}
	b.EarnedAt = fromMillis(earnedAt)
	return &b, nil
}

func (s *Store) GetUserBadge(ctx context.Context, profileID, badgeConfigurationID string) (*scoring.UserBadge, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+userBadgeColumns+` FROM user_badges WHERE profile_id = ? AND badge_configuration_id = ?`,
		profileID, badgeConfigurationID)
	b, err := scanUserBadge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user badge %s/%s: %w", profileID, badgeConfigurationID, err)
	}
	return b, nil
}

func (s *Store) ListUserBadges(ctx context.Context, profileID string) ([]*scoring.UserBadge, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+userBadgeColumns+` FROM user_badges WHERE profile_id = ? ORDER BY badge_configuration_id`,
		profileID)
	if err != nil {
		return nil, fmt.Errorf("list user badges for %s: %w", profileID, err)
	}
	defer rows.Close()

	badges := make([]*scoring.UserBadge, 0)
	for rows.Next() {
		b, err := scanUserBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user badge: %w", err)
		}
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user badges: %w", err)
	}
	return badges, nil
}

func (s *Store) AddUserBadge(ctx context.Context, badge *scoring.UserBadge) error {
	if badge == nil {
		return errors.New("badge cannot be nil")
	}
	b := *badge
	s.stage(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO user_badges (`+userBadgeColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, b.ID, b.ProfileID, b.BadgeConfigurationID, b.BadgeName, b.BadgeMessage,
			b.Axis, b.TriggerValue, b.Threshold, b.ImageID, toMillis(b.EarnedAt))
		if err != nil {
			return fmt.Errorf("insert user badge %s/%s: %w", b.ProfileID, b.BadgeConfigurationID, err)
		}
		return nil
	})
	return nil
}
