package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/compass-engine/internal/events"
	"github.com/jwebster45206/compass-engine/internal/queue"
	queuePkg "github.com/jwebster45206/compass-engine/pkg/queue"
)

func newWatchCmd() *cobra.Command {
	var (
		plain   bool
		enqueue string
	)

	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow progression events for a session",
		Long: `Subscribes to the session's event channel and shows requests, achievements
and badges as the workers publish them.

With --enqueue the request is queued after subscribing and watch exits once it
completes or fails. Use --plain for line output without the terminal UI.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]

			var reqType queuePkg.RequestType
			if enqueue != "" {
				var err error
				if reqType, err = parseRequestType(enqueue); err != nil {
					return err
				}
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
			pubsub := client.GetRedisClient().Subscribe(ctx, events.Channel(sessionID))
			defer pubsub.Close()
			if _, err := pubsub.Receive(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to session events: %w", err)
			}

			var requestID string
			if reqType != "" {
				req := queuePkg.NewRequest(reqType, sessionID)
				if err := queue.NewRequestQueue(client).EnqueueRequest(ctx, req); err != nil {
					return err
				}
				broadcaster := events.NewBroadcaster(client.GetRedisClient(), log)
				if err := broadcaster.PublishRequestQueued(ctx, req.SessionID, req.RequestID, string(req.Type)); err != nil {
					log.Warn("Failed to publish queued event", "error", err)
				}
				requestID = req.RequestID
			}

			if plain {
				return watchPlain(ctx, cmd.OutOrStdout(), pubsub.Channel(), requestID)
			}

			p := tea.NewProgram(NewWatchUI(sessionID, requestID, pubsub.Channel()),
				tea.WithAltScreen(),
				tea.WithContext(ctx))
			final, err := p.Run()
			if err != nil {
				return fmt.Errorf("error running watch UI: %w", err)
			}
			if m, ok := final.(WatchUI); ok {
				return m.err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print events as lines instead of the terminal UI")
	cmd.Flags().StringVar(&enqueue, "enqueue", "", "queue a request (finalize or achievements) and exit when it finishes")
	return cmd
}

// watchPlain prints events until the request finishes, the channel closes or ctx ends
func watchPlain(ctx context.Context, out io.Writer, ch <-chan *redis.Message, requestID string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				fmt.Fprintf(out, "malformed event: %v\n", err)
				continue
			}
			fmt.Fprintln(out, formatEvent(e, defaultWrapWidth))
			if isTerminal(e, requestID) {
				if e.Type == events.EventTypeRequestFailed {
					return fmt.Errorf("request %s failed: %v", requestID, e.Data["error"])
				}
				return nil
			}
		}
	}
}
