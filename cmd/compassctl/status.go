package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jwebster45206/compass-engine/internal/queue"
	"github.com/jwebster45206/compass-engine/internal/storage"
	"github.com/spf13/cobra"
)

type StatusResponse struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Service    string         `json:"service"`
	Components map[string]any `json:"components"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check storage and queue health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			components := make(map[string]any)
			overallStatus := "healthy"

			if store, err := storage.Open(ctx, cfg, log); err != nil {
				log.Warn("Storage health check failed", "error", err)
				components["storage"] = "unhealthy"
				overallStatus = "degraded"
			} else {
				if err := store.Ping(ctx); err != nil {
					components["storage"] = "unhealthy"
					overallStatus = "degraded"
				} else {
					components["storage"] = cfg.StorageDriver + ": healthy"
				}
				_ = store.Close()
			}

			if client, err := queue.NewClient(cfg.RedisURL, log); err != nil {
				log.Warn("Queue health check failed", "error", err)
				components["queue"] = "unhealthy"
				overallStatus = "degraded"
			} else {
				if health, err := client.Health(ctx); err != nil {
					log.Warn("Queue health check failed", "error", err)
					components["queue"] = "unhealthy"
					overallStatus = "degraded"
				} else {
					components["queue"] = "healthy"
					components["queue_depth"] = health.Depth
					components["queue_latency_ms"] = health.LatencyMS
				}
				_ = client.Close()
			}

			if err := printJSON(cmd.OutOrStdout(), StatusResponse{
				Status:     overallStatus,
				Timestamp:  time.Now(),
				Service:    "compass-engine",
				Components: components,
			}); err != nil {
				return err
			}
			if overallStatus != "healthy" {
				return fmt.Errorf("status: %s", overallStatus)
			}
			return nil
		},
	}
}
