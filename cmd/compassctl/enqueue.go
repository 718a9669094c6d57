package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jwebster45206/compass-engine/internal/config"
	"github.com/jwebster45206/compass-engine/internal/events"
	"github.com/jwebster45206/compass-engine/internal/logger"
	"github.com/jwebster45206/compass-engine/internal/queue"
	queuePkg "github.com/jwebster45206/compass-engine/pkg/queue"
	"github.com/spf13/cobra"
)

func parseRequestType(arg string) (queuePkg.RequestType, error) {
	switch arg {
	case "finalize", string(queuePkg.RequestTypeFinalizeSession):
		return queuePkg.RequestTypeFinalizeSession, nil
	case "achievements", string(queuePkg.RequestTypeEvaluateAchievements):
		return queuePkg.RequestTypeEvaluateAchievements, nil
	}
	return "", fmt.Errorf("unknown request type %q (want finalize or achievements)", arg)
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	// Logs go to stderr so command output stays parseable
	return cfg, logger.New(os.Stderr, cfg), nil
}

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <finalize|achievements> <session-id>",
		Short: "Queue a progression request for the workers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqType, err := parseRequestType(args[0])
			if err != nil {
				return err
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := queue.NewClient(cfg.RedisURL, log)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			req := queuePkg.NewRequest(reqType, args[1])
			if err := queue.NewRequestQueue(client).EnqueueRequest(ctx, req); err != nil {
				return err
			}

			broadcaster := events.NewBroadcaster(client.GetRedisClient(), log)
			if err := broadcaster.PublishRequestQueued(ctx, req.SessionID, req.RequestID, string(req.Type)); err != nil {
				log.Warn("Failed to publish queued event", "error", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s request %s for session %s\n", req.Type, req.RequestID, req.SessionID)
			return nil
		},
	}
}
