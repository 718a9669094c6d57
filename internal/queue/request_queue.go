package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwebster45206/compass-engine/pkg/queue"
	"github.com/redis/go-redis/v9"
)

// RequestsKey is the Redis list holding pending progression requests
const RequestsKey = "progression-requests"

// RequestQueue is a FIFO of progression requests shared by all workers
type RequestQueue struct {
	client *Client
}

func NewRequestQueue(client *Client) *RequestQueue {
	return &RequestQueue{
		client: client,
	}
}

// EnqueueRequest adds a request to the end of the queue
func (q *RequestQueue) EnqueueRequest(ctx context.Context, req *queue.Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	if err := q.client.rdb.RPush(ctx, RequestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}

	q.client.logger.Debug("Request enqueued",
		"request_id", req.RequestID,
		"type", req.Type,
		"session_id", req.SessionID,
	)
	return nil
}

// DequeueRequest removes and returns the next request.
// Returns nil if the queue is empty.
func (q *RequestQueue) DequeueRequest(ctx context.Context) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, RequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Queue is empty
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	req, err := queue.FromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// BlockingDequeueRequest waits up to timeout for a request.
// Returns nil, nil when the timeout passes or ctx is done.
func (q *RequestQueue) BlockingDequeueRequest(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, RequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// Depth returns the number of requests waiting
func (q *RequestQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, RequestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	return int(count), nil
}

// Peek returns up to limit requests without removing them. limit <= 0 returns all.
func (q *RequestQueue) Peek(ctx context.Context, limit int) ([]*queue.Request, error) {
	end := int64(limit - 1)
	if limit <= 0 {
		end = -1
	}
	items, err := q.client.rdb.LRange(ctx, RequestsKey, 0, end).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to peek requests: %w", err)
	}

	reqs := make([]*queue.Request, 0, len(items))
	for _, item := range items {
		req, err := queue.FromJSON([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
