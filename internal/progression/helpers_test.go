package progression

import (
	"log/slog"
	"os"
	"testing"

	"github.com/jwebster45206/compass-engine/pkg/session"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

// newPlayedSession builds a session with the given choices made and compass
// values applied from a zero start.
func newPlayedSession(t *testing.T, id, scenarioID, profileID string, choices int, compassValues map[string]float64, completed bool) *session.GameSession {
	t.Helper()

	gs := session.New(id, scenarioID, profileID)
	for i := 0; i < choices; i++ {
		require.NoError(t, gs.RecordChoice(session.Choice{SceneID: "scene", ChoiceText: "onward"}))
	}
	for axis, value := range compassValues {
		gs.AdjustCompass(axis, value, "test")
	}
	if completed {
		require.NoError(t, gs.Complete())
	}
	return gs
}
