package runner

import (
	"time"

	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name    string     `json:"name"`
	Seed    SeedData   `json:"seed,omitempty"`  // Used for regular tests
	Steps   []TestStep `json:"steps,omitempty"` // Used for regular tests
	Cases   []string   `json:"cases,omitempty"` // Used for suite tests (list of case files)
	Timeout string     `json:"timeout,omitempty"`
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// SeedData is written to storage before the first step. Session ids and
// profile ids are suffixed per run so suites never collide.
type SeedData struct {
	Session     session.GameSession `json:"session"`
	Profiles    []scoring.Profile   `json:"profiles,omitempty"`
	PriorScores []PriorScore        `json:"prior_scores,omitempty"`
}

// PriorScore is a score from an earlier play, so cumulative totals start non-zero
type PriorScore struct {
	ProfileID  string             `json:"profile_id"`
	ScenarioID string             `json:"scenario_id"`
	AxisScores map[string]float64 `json:"axis_scores"`
}

// TestStep enqueues one request and checks the outcome
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	Request      string       `json:"request"` // "finalize" or "achievements"
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a step completes
type Expectations struct {
	// Event stream
	Failed bool `json:"failed,omitempty"`

	// Session state after the step
	AchievementTitles []string `json:"achievement_titles,omitempty"` // order independent

	// Finalize results, keyed by seed profile id
	AlreadyPlayed map[string]bool     `json:"already_played,omitempty"`
	NewBadges     map[string][]string `json:"new_badges,omitempty"` // badge names, order independent
	HeldBadges    map[string]int      `json:"held_badges,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName  string
	StepName  string
	Success   bool
	Error     error
	Duration  time.Duration
	RequestID string
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID string // ID of the session used for this test
}
