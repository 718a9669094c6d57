package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jwebster45206/compass-engine/pkg/queue"
)

func TestNewClient_BareAddress(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := NewClient(mr.Addr(), logger)
	if err != nil {
		t.Fatalf("Expected host:port to be accepted, got %v", err)
	}
	defer client.Close()

	if _, err := NewClient("  ", logger); err == nil {
		t.Error("Expected error for empty address")
	}
}

func TestClient_Health(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	rq := NewRequestQueue(client)
	for _, id := range []string{"sess-1", "sess-2"} {
		if err := rq.EnqueueRequest(ctx, queue.NewRequest(queue.RequestTypeFinalizeSession, id)); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
	}

	health, err := client.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Depth != 2 {
		t.Errorf("Expected depth 2, got %d", health.Depth)
	}

	mr.Close()
	if _, err := client.Health(ctx); err == nil {
		t.Error("Expected health check to fail once Redis is gone")
	}
}
