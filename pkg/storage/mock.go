package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jwebster45206/compass-engine/pkg/compass"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
)

type writeKind int

const (
	writeSession writeKind = iota
	writeProfile
	writeScore
	writeBadge
)

type pendingWrite struct {
	kind    writeKind
	session *session.GameSession
	profile *scoring.Profile
	score   *scoring.PlayerScenarioScore
	badge   *scoring.UserBadge
}

// MockStorage is an in-memory implementation of Storage for testing.
// Writes are staged until SaveChanges, which enforces the same uniqueness
// rules as the real adapters.
type MockStorage struct {
	mu           sync.RWMutex
	sessions     map[string]*session.GameSession
	profiles     map[string]*scoring.Profile
	scores       map[string]*scoring.PlayerScenarioScore
	badgeConfigs []*scoring.BadgeConfiguration
	userBadges   map[string]*scoring.UserBadge
	pending      []pendingWrite
	errors       map[string]error
	pingError    error

	// Counters for asserting on write behaviour
	SaveChangesCalls int
	CommittedWrites  int
	DiscardCalls     int
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions:   make(map[string]*session.GameSession),
		profiles:   make(map[string]*scoring.Profile),
		scores:     make(map[string]*scoring.PlayerScenarioScore),
		userBadges: make(map[string]*scoring.UserBadge),
		errors:     make(map[string]error),
	}
}

func scoreKey(profileID, scenarioID string) string {
	return profileID + "|" + scenarioID
}

func badgeKey(profileID, configID string) string {
	return profileID + "|" + configID
}

// cloneSession returns a deep copy so callers cannot mutate stored state without Update
func cloneSession(s *session.GameSession) *session.GameSession {
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("mock storage: clone session: %v", err))
	}
	var out session.GameSession
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("mock storage: clone session: %v", err))
	}
	return &out
}

// SetError makes the named method return err until cleared with a nil error
func (m *MockStorage) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, method)
		return
	}
	m.errors[method] = err
}

func (m *MockStorage) injected(method string) error {
	return m.errors[method]
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// AddSession stores a session directly (for testing)
func (m *MockStorage) AddSession(s *session.GameSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
}

// AddProfile stores a profile directly (for testing)
func (m *MockStorage) AddProfile(p *scoring.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

// AddBadgeConfiguration adds to the badge catalogue (for testing)
func (m *MockStorage) AddBadgeConfiguration(cfg *scoring.BadgeConfiguration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badgeConfigs = append(m.badgeConfigs, cfg)
}

// SeedScore stores a committed score directly (for testing)
func (m *MockStorage) SeedScore(score *scoring.PlayerScenarioScore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[scoreKey(score.ProfileID, score.ScenarioID)] = score
}

// PendingWrites reports how many writes are staged but not committed
func (m *MockStorage) PendingWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// ScoreCount reports the number of committed score records
func (m *MockStorage) ScoreCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scores)
}

// UserBadgeCount reports the number of committed badges
func (m *MockStorage) UserBadgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userBadges)
}

func (m *MockStorage) GetSession(ctx context.Context, id string) (*session.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected("GetSession"); err != nil {
		return nil, err
	}
	s, exists := m.sessions[id]
	if !exists {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (m *MockStorage) UpdateSession(ctx context.Context, s *session.GameSession) error {
	if s == nil {
		return errors.New("session cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpdateSession"); err != nil {
		return err
	}
	m.pending = append(m.pending, pendingWrite{kind: writeSession, session: cloneSession(s)})
	return nil
}

func (m *MockStorage) GetProfile(ctx context.Context, id string) (*scoring.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected("GetProfile"); err != nil {
		return nil, err
	}
	p, exists := m.profiles[id]
	if !exists {
		return nil, nil
	}
	return p, nil
}

func (m *MockStorage) SaveProfile(ctx context.Context, p *scoring.Profile) error {
	if p == nil {
		return errors.New("profile cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, pendingWrite{kind: writeProfile, profile: p})
	return nil
}

func (m *MockStorage) GetScoresByProfile(ctx context.Context, profileID string) ([]*scoring.PlayerScenarioScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected("GetScoresByProfile"); err != nil {
		return nil, err
	}
	var out []*scoring.PlayerScenarioScore
	for _, s := range m.scores {
		if s.ProfileID == profileID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockStorage) GetScore(ctx context.Context, profileID, scenarioID string) (*scoring.PlayerScenarioScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected("GetScore"); err != nil {
		return nil, err
	}
	return m.scores[scoreKey(profileID, scenarioID)], nil
}

func (m *MockStorage) AddScore(ctx context.Context, score *scoring.PlayerScenarioScore) error {
	if score == nil {
		return errors.New("score cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, pendingWrite{kind: writeScore, score: score})
	return nil
}

func (m *MockStorage) ListBadgeConfigurations(ctx context.Context) ([]*scoring.BadgeConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected("ListBadgeConfigurations"); err != nil {
		return nil, err
	}
	out := make([]*scoring.BadgeConfiguration, len(m.badgeConfigs))
	copy(out, m.badgeConfigs)
	return out, nil
}

func (m *MockStorage) ListBadgeConfigurationsByAxis(ctx context.Context, axis string) ([]*scoring.BadgeConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected("ListBadgeConfigurationsByAxis"); err != nil {
		return nil, err
	}
	var out []*scoring.BadgeConfiguration
	for _, cfg := range m.badgeConfigs {
		if compass.SameAxis(cfg.Axis, axis) {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *MockStorage) GetUserBadge(ctx context.Context, profileID, badgeConfigurationID string) (*scoring.UserBadge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected("GetUserBadge"); err != nil {
		return nil, err
	}
	return m.userBadges[badgeKey(profileID, badgeConfigurationID)], nil
}

func (m *MockStorage) ListUserBadges(ctx context.Context, profileID string) ([]*scoring.UserBadge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*scoring.UserBadge
	for _, b := range m.userBadges {
		if b.ProfileID == profileID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeConfigurationID < out[j].BadgeConfigurationID })
	return out, nil
}

func (m *MockStorage) AddUserBadge(ctx context.Context, badge *scoring.UserBadge) error {
	if badge == nil {
		return errors.New("badge cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, pendingWrite{kind: writeBadge, badge: badge})
	return nil
}

// DiscardChanges drops staged writes without committing them
func (m *MockStorage) DiscardChanges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DiscardCalls++
	m.pending = nil
}

// SaveChanges commits staged writes atomically. A uniqueness violation
// discards the whole batch and returns ErrAlreadyExists.
func (m *MockStorage) SaveChanges(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveChangesCalls++

	pending := m.pending
	m.pending = nil

	if err := m.injected("SaveChanges"); err != nil {
		return err
	}

	newScores := make(map[string]bool)
	newBadges := make(map[string]bool)
	for _, w := range pending {
		switch w.kind {
		case writeScore:
			key := scoreKey(w.score.ProfileID, w.score.ScenarioID)
			if _, exists := m.scores[key]; exists || newScores[key] {
				return fmt.Errorf("score for profile %s scenario %s: %w", w.score.ProfileID, w.score.ScenarioID, ErrAlreadyExists)
			}
			newScores[key] = true
		case writeBadge:
			key := badgeKey(w.badge.ProfileID, w.badge.BadgeConfigurationID)
			if _, exists := m.userBadges[key]; exists || newBadges[key] {
				return fmt.Errorf("badge %s for profile %s: %w", w.badge.BadgeConfigurationID, w.badge.ProfileID, ErrAlreadyExists)
			}
			newBadges[key] = true
		}
	}

	for _, w := range pending {
		switch w.kind {
		case writeSession:
			m.sessions[w.session.ID] = w.session
		case writeProfile:
			m.profiles[w.profile.ID] = w.profile
		case writeScore:
			m.scores[scoreKey(w.score.ProfileID, w.score.ScenarioID)] = w.score
		case writeBadge:
			m.userBadges[badgeKey(w.badge.ProfileID, w.badge.BadgeConfigurationID)] = w.badge
		}
		m.CommittedWrites++
	}
	return nil
}
