package progression

import (
	"context"
	"errors"
	"testing"

	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
	"github.com/jwebster45206/compass-engine/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func achievementTypes(achievements []session.Achievement) []session.AchievementType {
	types := make([]session.AchievementType, 0, len(achievements))
	for _, a := range achievements {
		types = append(types, a.Type)
	}
	return types
}

func TestAchievementEvaluator_InvalidSessionID(t *testing.T) {
	store := storage.NewMockStorage()
	// Any I/O would fail loudly
	store.SetError("GetSession", errors.New("should not be called"))
	evaluator := NewAchievementEvaluator(store, testLogger(), 0)

	for _, id := range []string{"", "   ", "\t\n"} {
		got, err := evaluator.Evaluate(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidSessionID)
		assert.Nil(t, got)
	}
}

func TestAchievementEvaluator_MissingSession(t *testing.T) {
	store := storage.NewMockStorage()
	evaluator := NewAchievementEvaluator(store, testLogger(), 0)

	got, err := evaluator.Evaluate(context.Background(), "nonexistent")

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, store.SaveChangesCalls)
}

func TestAchievementEvaluator_EndToEnd(t *testing.T) {
	store := storage.NewMockStorage()
	ctx := context.Background()
	gs := newPlayedSession(t, "sess-1", "dragon_cave", "p1", 1, map[string]float64{"courage": 4.0}, true)
	store.AddSession(gs)
	evaluator := NewAchievementEvaluator(store, testLogger(), DefaultCompassThreshold)

	first, err := evaluator.Evaluate(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.ElementsMatch(t, []session.AchievementType{
		session.AchievementFirstChoice,
		session.AchievementSessionComplete,
		session.AchievementCompassThreshold,
	}, achievementTypes(first))

	for _, a := range first {
		if a.Type == session.AchievementCompassThreshold {
			assert.Equal(t, "courage", a.CompassAxis)
			assert.Equal(t, "sess-1_compass_threshold_courage", a.ID)
			assert.Equal(t, DefaultCompassThreshold, a.Threshold)
		}
		if a.Type == session.AchievementFirstChoice {
			assert.Equal(t, "First Steps", a.Title)
		}
		if a.Type == session.AchievementSessionComplete {
			assert.Equal(t, "Adventure Complete", a.Title)
		}
	}

	saved, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, saved.Achievements, 3)
	assert.Equal(t, 1, store.SaveChangesCalls)
	writes := store.CommittedWrites

	second, err := evaluator.Evaluate(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, second)

	saved, err = store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, saved.Achievements, 3, "second evaluation must not add achievements")
	assert.Equal(t, 1, store.SaveChangesCalls, "second evaluation must not write")
	assert.Equal(t, writes, store.CommittedWrites)
	assert.Equal(t, 0, store.PendingWrites())
}

func TestAchievementEvaluator_SymmetricThreshold(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		qualifies bool
	}{
		{"strongly positive", 4.0, true},
		{"strongly negative", -4.0, true},
		{"exactly threshold", 3.0, true},
		{"exactly negative threshold", -3.0, true},
		{"mildly positive", 2.0, false},
		{"mildly negative", -2.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStorage()
			store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, map[string]float64{"courage": tt.value}, false))
			evaluator := NewAchievementEvaluator(store, testLogger(), 3.0)

			got, err := evaluator.Evaluate(context.Background(), "sess-1")
			require.NoError(t, err)

			if tt.qualifies {
				require.Len(t, got, 1)
				assert.Equal(t, session.AchievementCompassThreshold, got[0].Type)
			} else {
				assert.Empty(t, got)
				assert.Equal(t, 0, store.SaveChangesCalls)
			}
		})
	}
}

func TestAchievementEvaluator_IndividualRules(t *testing.T) {
	t.Run("first choice only", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 2, nil, false))
		evaluator := NewAchievementEvaluator(store, testLogger(), 0)

		got, err := evaluator.Evaluate(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, []session.AchievementType{session.AchievementFirstChoice}, achievementTypes(got))
	})

	t.Run("completion without choices", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, nil, true))
		evaluator := NewAchievementEvaluator(store, testLogger(), 0)

		got, err := evaluator.Evaluate(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, []session.AchievementType{session.AchievementSessionComplete}, achievementTypes(got))
	})

	t.Run("paused session earns no completion", func(t *testing.T) {
		store := storage.NewMockStorage()
		gs := newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, nil, false)
		require.NoError(t, gs.Pause())
		store.AddSession(gs)
		evaluator := NewAchievementEvaluator(store, testLogger(), 0)

		got, err := evaluator.Evaluate(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestAchievementEvaluator_AwardsOnlyNewRules(t *testing.T) {
	store := storage.NewMockStorage()
	ctx := context.Background()
	evaluator := NewAchievementEvaluator(store, testLogger(), 0)

	gs := newPlayedSession(t, "sess-1", "dragon_cave", "p1", 1, nil, false)
	store.AddSession(gs)

	got, err := evaluator.Evaluate(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []session.AchievementType{session.AchievementFirstChoice}, achievementTypes(got))

	// Play continues: the session completes and courage climbs
	gs, err = store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	gs.AdjustCompass("Courage", 3.5, "charged the gate")
	require.NoError(t, gs.Complete())
	store.AddSession(gs)

	got, err = evaluator.Evaluate(ctx, "sess-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []session.AchievementType{
		session.AchievementSessionComplete,
		session.AchievementCompassThreshold,
	}, achievementTypes(got))

	saved, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, saved.Achievements, 3)
}

func TestAchievementEvaluator_BadgeConfiguredThreshold(t *testing.T) {
	t.Run("configured threshold overrides default", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.AddBadgeConfiguration(&scoring.BadgeConfiguration{ID: "brave", Axis: "Courage", Threshold: 5, Name: "Brave Heart", Message: "You stood your ground"})
		store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, map[string]float64{"courage": 4}, false))
		evaluator := NewAchievementEvaluator(store, testLogger(), 3.0)

		got, err := evaluator.Evaluate(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Empty(t, got, "4 is below the configured threshold of 5")
	})

	t.Run("badge name becomes title", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.AddBadgeConfiguration(&scoring.BadgeConfiguration{ID: "brave", Axis: "courage", Threshold: 5, Name: "Brave Heart", Message: "You stood your ground"})
		store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, map[string]float64{"courage": -6}, false))
		evaluator := NewAchievementEvaluator(store, testLogger(), 3.0)

		got, err := evaluator.Evaluate(context.Background(), "sess-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Brave Heart", got[0].Title)
		assert.Equal(t, "You stood your ground", got[0].Description)
		assert.Equal(t, 5.0, got[0].Threshold)
	})

	t.Run("lowest configured threshold wins", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.AddBadgeConfiguration(&scoring.BadgeConfiguration{ID: "hero", Axis: "courage", Threshold: 10, Name: "Hero"})
		store.AddBadgeConfiguration(&scoring.BadgeConfiguration{ID: "brave", Axis: "courage", Threshold: 2, Name: "Brave"})
		store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, map[string]float64{"courage": 2.5}, false))
		evaluator := NewAchievementEvaluator(store, testLogger(), 3.0)

		got, err := evaluator.Evaluate(context.Background(), "sess-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Brave", got[0].Title)
	})

	t.Run("unconfigured axis uses generated title", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, map[string]float64{"honesty": 3}, false))
		evaluator := NewAchievementEvaluator(store, testLogger(), 3.0)

		got, err := evaluator.Evaluate(context.Background(), "sess-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Honesty Milestone", got[0].Title)
	})
}

func TestAchievementEvaluator_CustomDefaultThreshold(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, map[string]float64{"courage": 4}, false))
	evaluator := NewAchievementEvaluator(store, testLogger(), 4.5)

	got, err := evaluator.Evaluate(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAchievementEvaluator_MultipleAxes(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, map[string]float64{
		"courage": 4,
		"honesty": -5,
		"wisdom":  1,
	}, false))
	evaluator := NewAchievementEvaluator(store, testLogger(), 3.0)

	got, err := evaluator.Evaluate(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "courage", got[0].CompassAxis)
	assert.Equal(t, "honesty", got[1].CompassAxis)
}

func TestAchievementEvaluator_StorageFailurePropagates(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("load", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.SetError("GetSession", boom)
		evaluator := NewAchievementEvaluator(store, testLogger(), 0)

		_, err := evaluator.Evaluate(context.Background(), "sess-1")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("badge lookup", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 0, map[string]float64{"courage": 4}, false))
		store.SetError("ListBadgeConfigurationsByAxis", boom)
		evaluator := NewAchievementEvaluator(store, testLogger(), 0)

		_, err := evaluator.Evaluate(context.Background(), "sess-1")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("commit", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.AddSession(newPlayedSession(t, "sess-1", "dragon_cave", "p1", 1, nil, false))
		store.SetError("SaveChanges", boom)
		evaluator := NewAchievementEvaluator(store, testLogger(), 0)

		_, err := evaluator.Evaluate(context.Background(), "sess-1")
		assert.ErrorIs(t, err, boom)
	})
}
