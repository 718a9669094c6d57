package session

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New("sess-1", "dragon_cave", "p1")

	assert.Equal(t, StatusInProgress, s.Status)
	assert.Empty(t, s.ChoiceHistory)
	assert.NotNil(t, s.CompassValues)
	assert.Nil(t, s.CompletedAt)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusInProgress, StatusPaused, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusPaused, StatusInProgress, true},
		{StatusPaused, StatusCompleted, true},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusPaused, false},
		{StatusInProgress, StatusInProgress, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestGameSession_Lifecycle(t *testing.T) {
	s := New("sess-1", "dragon_cave", "p1")

	require.NoError(t, s.Pause())
	assert.Equal(t, StatusPaused, s.Status)

	require.NoError(t, s.Resume())
	require.NoError(t, s.Complete())
	assert.Equal(t, StatusCompleted, s.Status)
	assert.NotNil(t, s.CompletedAt)

	err := s.Resume()
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	err = s.RecordChoice(Choice{SceneID: "intro", ChoiceText: "Run"})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Empty(t, s.ChoiceHistory)
}

func TestGameSession_RecordChoice(t *testing.T) {
	s := New("sess-1", "dragon_cave", "p1")

	require.NoError(t, s.RecordChoice(Choice{SceneID: "intro", ChoiceText: "Enter the cave", NextSceneID: "cave"}))
	require.NoError(t, s.RecordChoice(Choice{SceneID: "cave", ChoiceText: "Light a torch", NextSceneID: "hall"}))

	require.Len(t, s.ChoiceHistory, 2)
	assert.Equal(t, "intro", s.ChoiceHistory[0].SceneID)
	assert.False(t, s.ChoiceHistory[1].ChosenAt.IsZero())
}

func TestGameSession_AdjustCompass(t *testing.T) {
	s := &GameSession{ID: "sess-1"}

	s.AdjustCompass("Courage", 2, "stood ground")
	s.AdjustCompass("courage", 1.5, "crossed the bridge")

	tr := s.CompassValues.Get("COURAGE")
	require.NotNil(t, tr)
	assert.Equal(t, 3.5, tr.CurrentValue)
	assert.Len(t, tr.History, 2)
}

func TestGameSession_ParticipantProfileIDs(t *testing.T) {
	tests := []struct {
		name     string
		session  GameSession
		expected []string
	}{
		{
			name:     "owner only",
			session:  GameSession{ProfileID: "p1"},
			expected: []string{"p1"},
		},
		{
			name: "owner plus assigned player",
			session: GameSession{
				ProfileID: "p1",
				CharacterAssignments: []CharacterAssignment{
					{CharacterID: "knight", PlayerAssignment: &PlayerAssignment{ProfileID: "p2"}},
				},
			},
			expected: []string{"p1", "p2"},
		},
		{
			name: "case-insensitive dedup",
			session: GameSession{
				ProfileID: "P1",
				CharacterAssignments: []CharacterAssignment{
					{CharacterID: "knight", PlayerAssignment: &PlayerAssignment{ProfileID: "p1"}},
					{CharacterID: "wizard", PlayerAssignment: &PlayerAssignment{ProfileID: "p2"}},
					{CharacterID: "bard", PlayerAssignment: &PlayerAssignment{ProfileID: "P2"}},
				},
			},
			expected: []string{"P1", "p2"},
		},
		{
			name: "guests and unassigned characters ignored",
			session: GameSession{
				CharacterAssignments: []CharacterAssignment{
					{CharacterID: "knight"},
					{CharacterID: "wizard", PlayerAssignment: &PlayerAssignment{Type: "guest", GuestName: "Sam"}},
					{CharacterID: "bard", PlayerAssignment: &PlayerAssignment{ProfileID: "p3"}},
				},
			},
			expected: []string{"p3"},
		},
		{
			name:     "nobody",
			session:  GameSession{},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.session.ParticipantProfileIDs())
		})
	}
}

func TestAchievementID(t *testing.T) {
	assert.Equal(t, "sess-1_first_choice", AchievementID("sess-1", AchievementFirstChoice, ""))
	assert.Equal(t, "sess-1_compass_threshold_courage", AchievementID("sess-1", AchievementCompassThreshold, "Courage"))
}

func TestGameSession_HasAchievement(t *testing.T) {
	s := New("sess-1", "dragon_cave", "p1")
	s.Achievements = append(s.Achievements, Achievement{ID: AchievementID(s.ID, AchievementFirstChoice, "")})

	assert.True(t, s.HasAchievement("sess-1_first_choice"))
	assert.False(t, s.HasAchievement("sess-1_session_complete"))
}

func TestGameSession_JSONRoundTrip(t *testing.T) {
	s := New("sess-1", "dragon_cave", "p1")
	s.AdjustCompass("Courage", 4, "")
	require.NoError(t, s.RecordChoice(Choice{SceneID: "intro", ChoiceText: "Go"}))

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var loaded GameSession
	require.NoError(t, json.Unmarshal(data, &loaded))

	assert.Equal(t, s.ID, loaded.ID)
	assert.Len(t, loaded.ChoiceHistory, 1)
	require.NotNil(t, loaded.CompassValues.Get("courage"))
	assert.Equal(t, 4.0, loaded.CompassValues.Get("courage").CurrentValue)
}
