package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/compass-engine/pkg/compass"
)

// Status is the lifecycle state of a game session
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

var ErrInvalidTransition = errors.New("invalid session status transition")

// Choice is one recorded decision made during play
type Choice struct {
	SceneID     string    `json:"scene_id"`
	ChoiceText  string    `json:"choice_text"`
	NextSceneID string    `json:"next_scene_id,omitempty"`
	ChosenAt    time.Time `json:"chosen_at"`
}

// PlayerAssignment ties a character to whoever is playing it.
// ProfileID is empty for guests.
type PlayerAssignment struct {
	Type      string `json:"type,omitempty"` // e.g. "profile", "guest"
	ProfileID string `json:"profile_id,omitempty"`
	GuestName string `json:"guest_name,omitempty"`
}

// CharacterAssignment maps a scenario character to a player for multiplayer sessions
type CharacterAssignment struct {
	CharacterID      string            `json:"character_id"`
	CharacterName    string            `json:"character_name,omitempty"`
	PlayerAssignment *PlayerAssignment `json:"player_assignment,omitempty"`
}

// GameSession is one play-through of a scenario.
type GameSession struct {
	ID                   string                `json:"id"`
	ScenarioID           string                `json:"scenario_id"`
	ProfileID            string                `json:"profile_id,omitempty"`
	Status               Status                `json:"status"`
	ChoiceHistory        []Choice              `json:"choice_history,omitempty"`
	CompassValues        compass.Values        `json:"compass_values,omitempty"`
	Achievements         []Achievement         `json:"achievements,omitempty"`
	CharacterAssignments []CharacterAssignment `json:"character_assignments,omitempty"`
	StartedAt            time.Time             `json:"started_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
	CompletedAt          *time.Time            `json:"completed_at,omitempty"`
}

// New creates an in-progress session for a scenario
func New(id, scenarioID, profileID string) *GameSession {
	now := time.Now()
	return &GameSession{
		ID:            id,
		ScenarioID:    scenarioID,
		ProfileID:     profileID,
		Status:        StatusInProgress,
		ChoiceHistory: make([]Choice, 0),
		CompassValues: make(compass.Values),
		Achievements:  make([]Achievement, 0),
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

// RecordChoice appends a choice to the history. Completed sessions are read-only.
func (s *GameSession) RecordChoice(c Choice) error {
	if s.Status == StatusCompleted {
		return fmt.Errorf("%w: cannot record choice on completed session %s", ErrInvalidTransition, s.ID)
	}
	if c.ChosenAt.IsZero() {
		c.ChosenAt = time.Now()
	}
	s.ChoiceHistory = append(s.ChoiceHistory, c)
	s.UpdatedAt = c.ChosenAt
	return nil
}

// AdjustCompass applies a delta to an axis, creating the axis if needed
func (s *GameSession) AdjustCompass(axis string, delta float64, reason string) {
	if s.CompassValues == nil {
		s.CompassValues = make(compass.Values)
	}
	now := time.Now()
	s.CompassValues.Track(axis).Apply(delta, reason, now)
	s.UpdatedAt = now
}

// Pause moves an in-progress session to paused
func (s *GameSession) Pause() error {
	return s.transition(StatusPaused)
}

// Resume moves a paused session back to in progress
func (s *GameSession) Resume() error {
	return s.transition(StatusInProgress)
}

// Complete marks the session finished
func (s *GameSession) Complete() error {
	if err := s.transition(StatusCompleted); err != nil {
		return err
	}
	completedAt := s.UpdatedAt
	s.CompletedAt = &completedAt
	return nil
}

func (s *GameSession) transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = time.Now()
	return nil
}

// CanTransition reports whether the status machine allows from -> to
func CanTransition(from, to Status) bool {
	switch from {
	case StatusInProgress:
		return to == StatusPaused || to == StatusCompleted
	case StatusPaused:
		return to == StatusInProgress || to == StatusCompleted
	default:
		return false
	}
}

// ParticipantProfileIDs returns every profile that played in this session:
// the owning profile plus any profile assigned to a character.
// IDs are de-duplicated case-insensitively, keeping first-seen order.
func (s *GameSession) ParticipantProfileIDs() []string {
	seen := make(map[string]bool)
	ids := make([]string, 0, 1+len(s.CharacterAssignments))

	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		key := strings.ToLower(id)
		if seen[key] {
			return
		}
		seen[key] = true
		ids = append(ids, id)
	}

	add(s.ProfileID)
	for _, assignment := range s.CharacterAssignments {
		if assignment.PlayerAssignment != nil {
			add(assignment.PlayerAssignment.ProfileID)
		}
	}
	return ids
}

// HasAchievement checks whether an achievement with this id was already awarded
func (s *GameSession) HasAchievement(id string) bool {
	for _, a := range s.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}
