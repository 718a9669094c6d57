package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/compass-engine/internal/events"
	"github.com/jwebster45206/compass-engine/internal/logger"
	"github.com/jwebster45206/compass-engine/internal/progression"
	"github.com/jwebster45206/compass-engine/internal/queue"
	queuePkg "github.com/jwebster45206/compass-engine/pkg/queue"
	"github.com/jwebster45206/compass-engine/pkg/session"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPollTimeout = 5 * time.Second
	defaultLockTTL     = 30 * time.Second
	errorBackoff       = 1 * time.Second
)

// releaseLockScript deletes the lock only if we still own it
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Processor runs progression requests against storage
type Processor interface {
	EvaluateAchievements(ctx context.Context, sessionID string) ([]session.Achievement, error)
	FinalizeSession(ctx context.Context, sessionID string) (*progression.FinalizeResult, error)
}

// Options tunes a worker. Zero values fall back to defaults.
type Options struct {
	ID          string
	LockTTL     time.Duration
	PollTimeout time.Duration
}

// Worker processes progression requests from the shared queue, holding a
// per-session lock while a request runs.
type Worker struct {
	id          string
	queue       *queue.RequestQueue
	processor   Processor
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	log         *slog.Logger
	lockTTL     time.Duration
	pollTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance
func New(requestQueue *queue.RequestQueue, processor Processor, redisClient *redis.Client, log *slog.Logger, opts Options) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	workerID := opts.ID
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	return &Worker{
		id:          workerID,
		queue:       requestQueue,
		processor:   processor,
		broadcaster: events.NewBroadcaster(redisClient, log),
		redisClient: redisClient,
		log:         log,
		lockTTL:     lockTTL,
		pollTimeout: pollTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the worker's lock owner id
func (w *Worker) ID() string {
	return w.id
}

// Start processes requests until Stop is called
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err, "worker_id", w.id)
				// Continue processing even on error
				select {
				case <-w.ctx.Done():
				case <-time.After(errorBackoff):
				}
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	// Bounded wait so shutdown is noticed
	ctx, cancel := context.WithTimeout(w.ctx, w.pollTimeout+time.Second)
	defer cancel()

	req, err := w.queue.BlockingDequeueRequest(ctx, w.pollTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		// Queue is empty or timeout occurred - this is normal
		return nil
	}

	w.log.Info("Received request from queue",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"type", req.Type,
		"session_id", req.SessionID,
	)

	if err := req.Validate(); err != nil {
		w.publishFailed(req, err)
		return fmt.Errorf("dropping request %s: %w", req.RequestID, err)
	}

	locked, err := w.acquireSessionLock(req.SessionID)
	if err != nil {
		// Put it back so the request is not lost
		if qErr := w.queue.EnqueueRequest(w.ctx, req); qErr != nil {
			w.log.Error("Failed to re-queue request", "error", qErr, "request_id", req.RequestID)
		}
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !locked {
		// Another worker holds this session; retry after the rest of the queue
		w.log.Info("Session already locked, re-queueing request",
			"worker_id", w.id,
			"request_id", req.RequestID,
			"session_id", req.SessionID,
		)
		if err := w.queue.EnqueueRequest(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}

	defer w.releaseSessionLock(req.SessionID)
	return w.processRequest(req)
}

func lockKey(sessionID string) string {
	return fmt.Sprintf("session-lock:%s", sessionID)
}

// acquireSessionLock returns true if the lock was acquired, false if already held
func (w *Worker) acquireSessionLock(sessionID string) (bool, error) {
	return w.redisClient.SetNX(w.ctx, lockKey(sessionID), w.id, w.lockTTL).Result()
}

// releaseSessionLock releases the lock for a session
func (w *Worker) releaseSessionLock(sessionID string) {
	// Released even during shutdown
	ctx := context.WithoutCancel(w.ctx)
	if err := releaseLockScript.Run(ctx, w.redisClient, []string{lockKey(sessionID)}, w.id).Err(); err != nil {
		w.log.Error("Failed to release session lock", "error", err, "session_id", sessionID)
	}
}

// processRequest runs a single request and publishes its outcome
func (w *Worker) processRequest(req *queuePkg.Request) error {
	log := logger.WithRequest(w.log, req.RequestID, req.SessionID).With("worker_id", w.id, "type", req.Type)
	log.Info("Processing request")

	start := time.Now()

	if err := w.broadcaster.PublishRequestProcessing(w.ctx, req.SessionID, req.RequestID, string(req.Type)); err != nil {
		log.Error("Failed to publish processing event", "error", err)
		// Don't fail the request just because event publishing failed
	}

	var (
		result map[string]any
		err    error
	)
	switch req.Type {
	case queuePkg.RequestTypeEvaluateAchievements:
		result, err = w.evaluateAchievements(req)
	case queuePkg.RequestTypeFinalizeSession:
		result, err = w.finalizeSession(req)
	default:
		err = fmt.Errorf("unknown request type: %s", req.Type)
	}

	if err != nil {
		log.Error("Request failed", "error", err)
		w.publishFailed(req, err)
		return fmt.Errorf("failed to process %s request: %w", req.Type, err)
	}

	durationMs := time.Since(start).Milliseconds()
	result["duration_ms"] = durationMs

	log.Info("Request processed successfully", "duration_ms", durationMs)

	if err := w.broadcaster.PublishRequestCompleted(w.ctx, req.SessionID, req.RequestID, result); err != nil {
		log.Error("Failed to publish completion event", "error", err)
	}
	return nil
}

func (w *Worker) evaluateAchievements(req *queuePkg.Request) (map[string]any, error) {
	earned, err := w.processor.EvaluateAchievements(w.ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if len(earned) > 0 {
		if err := w.broadcaster.PublishAchievementsAwarded(w.ctx, req.SessionID, req.RequestID, earned); err != nil {
			w.log.Error("Failed to publish achievements event", "error", err)
		}
	}

	return map[string]any{
		"achievements": earned,
	}, nil
}

func (w *Worker) finalizeSession(req *queuePkg.Request) (map[string]any, error) {
	res, err := w.processor.FinalizeSession(w.ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	for _, award := range res.Awards {
		if len(award.NewBadges) == 0 {
			continue
		}
		if err := w.broadcaster.PublishBadgesAwarded(w.ctx, req.SessionID, req.RequestID, award.ProfileID, award.NewBadges); err != nil {
			w.log.Error("Failed to publish badges event", "error", err, "profile_id", award.ProfileID)
		}
	}

	return map[string]any{
		"awards":                   res.Awards,
		"profiles_with_new_badges": res.ProfilesWithNewBadges(),
	}, nil
}

func (w *Worker) publishFailed(req *queuePkg.Request, cause error) {
	if req.SessionID == "" {
		return
	}
	if err := w.broadcaster.PublishRequestFailed(w.ctx, req.SessionID, req.RequestID, cause.Error()); err != nil {
		w.log.Error("Failed to publish failure event", "error", err)
	}
}
