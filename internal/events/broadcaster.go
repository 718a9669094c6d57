package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeRequestQueued       EventType = "request.queued"
	EventTypeRequestProcessing   EventType = "request.processing"
	EventTypeRequestCompleted    EventType = "request.completed"
	EventTypeRequestFailed       EventType = "request.failed"
	EventTypeAchievementsAwarded EventType = "achievements.awarded"
	EventTypeBadgesAwarded       EventType = "badges.awarded"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Channel returns the pub/sub channel for a session
func Channel(sessionID string) string {
	return fmt.Sprintf("session-events:%s", sessionID)
}

// Broadcaster publishes session events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishRequestQueued publishes a request.queued event
func (b *Broadcaster) PublishRequestQueued(ctx context.Context, sessionID, requestID, requestType string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeRequestQueued,
		RequestID: requestID,
		SessionID: sessionID,
		Data: map[string]any{
			"status": "queued",
			"type":   requestType,
		},
	})
}

// PublishRequestProcessing publishes a request.processing event
func (b *Broadcaster) PublishRequestProcessing(ctx context.Context, sessionID, requestID, requestType string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeRequestProcessing,
		RequestID: requestID,
		SessionID: sessionID,
		Data: map[string]any{
			"status": "processing",
			"type":   requestType,
		},
	})
}

// PublishRequestCompleted publishes a request.completed event
func (b *Broadcaster) PublishRequestCompleted(ctx context.Context, sessionID, requestID string, result map[string]any) error {
	return b.publish(ctx, Event{
		Type:      EventTypeRequestCompleted,
		RequestID: requestID,
		SessionID: sessionID,
		Data: map[string]any{
			"status": "completed",
			"result": result,
		},
	})
}

// PublishRequestFailed publishes a request.failed event
func (b *Broadcaster) PublishRequestFailed(ctx context.Context, sessionID, requestID, errorMsg string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeRequestFailed,
		RequestID: requestID,
		SessionID: sessionID,
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

// PublishAchievementsAwarded announces newly earned session achievements
func (b *Broadcaster) PublishAchievementsAwarded(ctx context.Context, sessionID, requestID string, achievements []session.Achievement) error {
	return b.publish(ctx, Event{
		Type:      EventTypeAchievementsAwarded,
		RequestID: requestID,
		SessionID: sessionID,
		Data: map[string]any{
			"achievements": achievements,
		},
	})
}

// PublishBadgesAwarded announces badges newly earned by one profile
func (b *Broadcaster) PublishBadgesAwarded(ctx context.Context, sessionID, requestID, profileID string, badges []scoring.BadgeView) error {
	return b.publish(ctx, Event{
		Type:      EventTypeBadgesAwarded,
		RequestID: requestID,
		SessionID: sessionID,
		Data: map[string]any{
			"profile_id": profileID,
			"badges":     badges,
		},
	})
}

// publish sends an event to the session-specific channel
func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	channel := Channel(event.SessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
