package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/compass-engine/internal/events"
	"github.com/jwebster45206/compass-engine/internal/progression"
	"github.com/jwebster45206/compass-engine/internal/queue"
	"github.com/jwebster45206/compass-engine/internal/storage/redisstore"
	queuePkg "github.com/jwebster45206/compass-engine/pkg/queue"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running progression worker.
// Fixtures are written straight to Redis and requests go through the same
// queue the worker reads.
type Runner struct {
	Redis             *redis.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode

	store *redisstore.RedisStorage
	queue *queue.RequestQueue
}

// NewRunner connects to Redis. The data dir only matters for badge lookups
// and should match the worker's DATA_DIR.
func NewRunner(redisURL, dataDir string) (*Runner, error) {
	opts, err := redisstore.ParseOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Runner{
		Redis:             rdb,
		Timeout:           30 * time.Second,
		ErrorHandlingMode: ErrorHandlingContinue,
		store:             redisstore.NewWithClient(rdb, dataDir, slog.Default()),
		queue:             queue.NewRequestQueue(queue.NewClientWithRedis(rdb, slog.Default())),
	}, nil
}

// Close releases the Redis connection
func (r *Runner) Close() error {
	return r.Redis.Close()
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Sequences may reference other sequences
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite seeds the suite's fixtures and executes its steps in order
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	if suite.Timeout != "" {
		d, err := time.ParseDuration(suite.Timeout)
		if err != nil {
			result.Error = fmt.Errorf("invalid timeout %q: %w", suite.Timeout, err)
			return result, result.Error
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ids, err := r.seed(ctx, suite.Seed)
	if err != nil {
		result.Error = fmt.Errorf("failed to seed fixtures: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.SessionID = ids.session

	for i, step := range suite.Steps {
		stepName := step.Name
		if stepName == "" {
			stepName = fmt.Sprintf("step %d (%s)", i+1, step.Request)
		}
		r.logf("Executing %s", stepName)

		stepResult := r.runStep(ctx, ids, step)
		stepResult.TestName = suite.Name
		stepResult.StepName = stepName
		result.Results = append(result.Results, stepResult)

		if !stepResult.Success {
			r.logf("Step failed: %s: %v", stepName, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %q failed: %w", stepName, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
		}
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runIDs maps fixture ids from the case file to the ids used for this run
type runIDs struct {
	session  string
	profiles map[string]string
}

func (ids runIDs) profile(id string) string {
	if mapped, ok := ids.profiles[id]; ok {
		return mapped
	}
	return id
}

func (r *Runner) seed(ctx context.Context, seed SeedData) (runIDs, error) {
	suffix := uuid.New().String()[:8]
	ids := runIDs{
		session:  fmt.Sprintf("%s-%s", fallback(seed.Session.ID, "session"), suffix),
		profiles: make(map[string]string, len(seed.Profiles)),
	}
	for _, p := range seed.Profiles {
		ids.profiles[p.ID] = fmt.Sprintf("%s-%s", p.ID, suffix)
	}

	for _, p := range seed.Profiles {
		profile := scoring.Profile{ID: ids.profile(p.ID), Name: p.Name}
		if err := r.store.SaveProfile(ctx, &profile); err != nil {
			return ids, err
		}
	}

	for _, prior := range seed.PriorScores {
		score := scoring.NewPlayerScenarioScore(ids.profile(prior.ProfileID), prior.ScenarioID, "", prior.AxisScores)
		if err := r.store.AddScore(ctx, score); err != nil {
			return ids, err
		}
	}

	gs := seed.Session
	gs.ID = ids.session
	gs.ProfileID = ids.profile(gs.ProfileID)
	// Copied so repeated runs start from the case file's ids
	gs.CharacterAssignments = append([]session.CharacterAssignment(nil), gs.CharacterAssignments...)
	for i, ca := range gs.CharacterAssignments {
		if ca.PlayerAssignment != nil && ca.PlayerAssignment.ProfileID != "" {
			pa := *ca.PlayerAssignment
			pa.ProfileID = ids.profile(pa.ProfileID)
			gs.CharacterAssignments[i].PlayerAssignment = &pa
		}
	}
	if gs.Status == "" {
		gs.Status = session.StatusInProgress
	}
	if gs.StartedAt.IsZero() {
		gs.StartedAt = time.Now().UTC()
	}
	if err := r.store.UpdateSession(ctx, &gs); err != nil {
		return ids, err
	}

	return ids, r.store.SaveChanges(ctx)
}

func (r *Runner) runStep(ctx context.Context, ids runIDs, step TestStep) TestResult {
	start := time.Now()
	res := TestResult{}

	reqType, err := parseRequestType(step.Request)
	if err != nil {
		res.Error = err
		return res
	}

	event, requestID, err := r.enqueueAndWait(ctx, ids.session, reqType)
	res.RequestID = requestID
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}

	if err := r.checkExpectations(ctx, ids, step.Expectations, event); err != nil {
		res.Error = err
		return res
	}

	res.Success = true
	return res
}

func parseRequestType(s string) (queuePkg.RequestType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "finalize", string(queuePkg.RequestTypeFinalizeSession):
		return queuePkg.RequestTypeFinalizeSession, nil
	case "achievements", string(queuePkg.RequestTypeEvaluateAchievements):
		return queuePkg.RequestTypeEvaluateAchievements, nil
	default:
		return "", fmt.Errorf("unknown request %q", s)
	}
}

// enqueueAndWait subscribes before enqueueing so the terminal event can't be missed
func (r *Runner) enqueueAndWait(ctx context.Context, sessionID string, reqType queuePkg.RequestType) (*events.Event, string, error) {
	pubsub := r.Redis.Subscribe(ctx, events.Channel(sessionID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to subscribe: %w", err)
	}

	req := queuePkg.NewRequest(reqType, sessionID)
	if err := r.queue.EnqueueRequest(ctx, req); err != nil {
		return nil, req.RequestID, err
	}
	r.logf("  Enqueued %s request %s", reqType, req.RequestID)

	timeout := time.NewTimer(r.Timeout)
	defer timeout.Stop()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil, req.RequestID, ctx.Err()
		case <-timeout.C:
			return nil, req.RequestID, fmt.Errorf("timed out after %v waiting for request %s", r.Timeout, req.RequestID)
		case msg, ok := <-ch:
			if !ok {
				return nil, req.RequestID, fmt.Errorf("event channel closed")
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logf("  Ignoring malformed event: %v", err)
				continue
			}
			if event.RequestID != req.RequestID {
				continue
			}
			r.logf("  Event: %s", event.Type)
			switch event.Type {
			case events.EventTypeRequestCompleted, events.EventTypeRequestFailed:
				return &event, req.RequestID, nil
			}
		}
	}
}

func (r *Runner) checkExpectations(ctx context.Context, ids runIDs, exp Expectations, event *events.Event) error {
	failed := event.Type == events.EventTypeRequestFailed
	if failed != exp.Failed {
		return fmt.Errorf("expected failed=%v, got event %s (%v)", exp.Failed, event.Type, event.Data["error"])
	}
	if failed {
		return nil
	}

	if exp.AchievementTitles != nil {
		gs, err := r.store.GetSession(ctx, ids.session)
		if err != nil {
			return err
		}
		if gs == nil {
			return fmt.Errorf("session %s not found after step", ids.session)
		}
		var got []string
		for _, a := range gs.Achievements {
			got = append(got, a.Title)
		}
		if err := sameStrings("achievement titles", exp.AchievementTitles, got); err != nil {
			return err
		}
	}

	if exp.AlreadyPlayed != nil || exp.NewBadges != nil {
		awards, err := decodeAwards(event)
		if err != nil {
			return err
		}
		for profileID, want := range exp.AlreadyPlayed {
			award, ok := awards[ids.profile(profileID)]
			if !ok {
				return fmt.Errorf("no award entry for profile %s", profileID)
			}
			if award.AlreadyPlayed != want {
				return fmt.Errorf("profile %s: expected already_played=%v, got %v", profileID, want, award.AlreadyPlayed)
			}
		}
		for profileID, want := range exp.NewBadges {
			award, ok := awards[ids.profile(profileID)]
			if !ok {
				return fmt.Errorf("no award entry for profile %s", profileID)
			}
			var got []string
			for _, b := range award.NewBadges {
				got = append(got, b.Name)
			}
			if err := sameStrings("new badges for "+profileID, want, got); err != nil {
				return err
			}
		}
	}

	for profileID, want := range exp.HeldBadges {
		held, err := r.store.ListUserBadges(ctx, ids.profile(profileID))
		if err != nil {
			return err
		}
		if len(held) != want {
			return fmt.Errorf("profile %s: expected %d held badges, got %d", profileID, want, len(held))
		}
	}

	return nil
}

// decodeAwards pulls the finalize awards out of a completed event, keyed by profile id
func decodeAwards(event *events.Event) (map[string]progression.ProfileBadgeAwards, error) {
	raw, err := json.Marshal(event.Data["result"])
	if err != nil {
		return nil, err
	}
	var result struct {
		Awards []progression.ProfileBadgeAwards `json:"awards"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode finalize result: %w", err)
	}

	awards := make(map[string]progression.ProfileBadgeAwards, len(result.Awards))
	for _, a := range result.Awards {
		awards[a.ProfileID] = a
	}
	return awards, nil
}

func sameStrings(what string, want, got []string) error {
	want = append([]string(nil), want...)
	got = append([]string(nil), got...)
	sort.Strings(want)
	sort.Strings(got)
	if strings.Join(want, "\x00") != strings.Join(got, "\x00") {
		return fmt.Errorf("%s: expected %v, got %v", what, want, got)
	}
	return nil
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger(format, args...)
	}
}
