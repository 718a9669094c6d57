package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jwebster45206/compass-engine/pkg/compass"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
	"github.com/jwebster45206/compass-engine/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := Open(filepath.Join(t.TempDir(), "compass.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	if _, err := Open("  ", logger); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	gs := session.New("sess-1", "dragon_cave", "p1")
	require.NoError(t, gs.RecordChoice(session.Choice{SceneID: "gate", ChoiceText: "enter"}))
	gs.AdjustCompass("Courage", 2.5, "entered the cave")
	require.NoError(t, store.UpdateSession(ctx, gs))

	missing, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, missing, "staged writes are not visible before SaveChanges")

	require.NoError(t, store.SaveChanges(ctx))

	loaded, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "dragon_cave", loaded.ScenarioID)
	assert.Equal(t, 2.5, loaded.CompassValues.Get("courage").CurrentValue)

	// Upsert
	require.NoError(t, loaded.Complete())
	require.NoError(t, store.UpdateSession(ctx, loaded))
	require.NoError(t, store.SaveChanges(ctx))

	again, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, again.Status)
}

func TestProfiles(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProfile(ctx, &scoring.Profile{ID: "p1", Name: "Ada"}))
	require.NoError(t, store.SaveChanges(ctx))

	p, err := store.GetProfile(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ada", p.Name)

	p, err = store.GetProfile(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestScores(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	first := scoring.NewPlayerScenarioScore("p1", "dragon_cave", "sess-1", compass.Totals{"courage": 2})
	second := scoring.NewPlayerScenarioScore("p1", "sunken_city", "sess-2", nil)
	require.NoError(t, store.AddScore(ctx, first))
	require.NoError(t, store.AddScore(ctx, second))
	require.NoError(t, store.SaveChanges(ctx))

	got, err := store.GetScore(ctx, "p1", "dragon_cave")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 2.0, got.AxisScores.Get("courage"))

	none, err := store.GetScore(ctx, "p2", "dragon_cave")
	require.NoError(t, err)
	assert.Nil(t, none)

	scores, err := store.GetScoresByProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, scores, 2)

	empty, err := store.GetScoresByProfile(ctx, "p2")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestDuplicateScoreRollsBackBatch(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddScore(ctx, scoring.NewPlayerScenarioScore("p1", "dragon_cave", "sess-1", nil)))
	require.NoError(t, store.SaveChanges(ctx))

	require.NoError(t, store.SaveProfile(ctx, &scoring.Profile{ID: "p1", Name: "Ada"}))
	require.NoError(t, store.AddScore(ctx, scoring.NewPlayerScenarioScore("p1", "dragon_cave", "sess-2", nil)))

	err := store.SaveChanges(ctx)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("SaveChanges error = %v, want ErrAlreadyExists", err)
	}

	p, err := store.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p, "profile write rolled back with the batch")
}

func TestBadgeConfigurations(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.SyncBadgeConfigurations(ctx, []*scoring.BadgeConfiguration{
		{ID: "courage-gold", Axis: "Courage", Threshold: 10, Name: "Lionheart"},
		{ID: "courage-bronze", Axis: "courage", Threshold: 3, Name: "Brave Start"},
		{ID: "honesty-bronze", Axis: "honesty", Threshold: 3, Name: "Truth Teller", Message: "Honest to a fault"},
	}))

	all, err := store.ListBadgeConfigurations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	courage, err := store.ListBadgeConfigurationsByAxis(ctx, "COURAGE")
	require.NoError(t, err)
	require.Len(t, courage, 2)
	assert.Equal(t, "courage-bronze", courage[0].ID)
	assert.Equal(t, "courage-gold", courage[1].ID)

	// Sync replaces the catalogue
	require.NoError(t, store.SyncBadgeConfigurations(ctx, []*scoring.BadgeConfiguration{
		{ID: "wisdom", Axis: "wisdom", Threshold: 4, Name: "Sage"},
	}))
	all, err = store.ListBadgeConfigurations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "wisdom", all[0].ID)

	err = store.SyncBadgeConfigurations(ctx, []*scoring.BadgeConfiguration{
		{ID: "dup", Axis: "wisdom", Threshold: 4, Name: "A"},
		{ID: "dup", Axis: "wisdom", Threshold: 5, Name: "B"},
	})
	require.Error(t, err)
	all, err = store.ListBadgeConfigurations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed sync leaves the previous catalogue")
}

func TestUserBadges(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	cfg := &scoring.BadgeConfiguration{ID: "brave", Axis: "courage", Threshold: 5, Name: "Brave Heart", ImageID: "img-brave"}

	require.NoError(t, store.AddUserBadge(ctx, scoring.NewUserBadge("p1", cfg, -6)))
	require.NoError(t, store.SaveChanges(ctx))

	b, err := store.GetUserBadge(ctx, "p1", "brave")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, -6.0, b.TriggerValue)
	assert.Equal(t, "img-brave", b.ImageID)

	b, err = store.GetUserBadge(ctx, "p2", "brave")
	require.NoError(t, err)
	assert.Nil(t, b)

	badges, err := store.ListUserBadges(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, badges, 1)

	require.NoError(t, store.AddUserBadge(ctx, scoring.NewUserBadge("p1", cfg, 8)))
	assert.ErrorIs(t, store.SaveChanges(ctx), storage.ErrAlreadyExists)
}

func TestSaveChangesWithNothingStaged(t *testing.T) {
	store := openTempStore(t)
	require.NoError(t, store.SaveChanges(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
}

func TestDiscardChanges(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	cfg := &scoring.BadgeConfiguration{ID: "brave", Axis: "courage", Threshold: 3, Name: "Brave"}

	require.NoError(t, store.AddUserBadge(ctx, scoring.NewUserBadge("p1", cfg, 4)))
	store.DiscardChanges()
	require.NoError(t, store.SaveChanges(ctx))

	badges, err := store.ListUserBadges(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, badges)

	require.NoError(t, store.AddUserBadge(ctx, scoring.NewUserBadge("p1", cfg, 4)))
	require.NoError(t, store.SaveChanges(ctx))
	badges, err = store.ListUserBadges(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, badges, 1)
}
