package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/jwebster45206/compass-engine/internal/progression"
	"github.com/jwebster45206/compass-engine/internal/storage"
	"github.com/spf13/cobra"
)

const storageTimeout = 30 * time.Second

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withEngine opens storage, builds an engine and runs fn against it
func withEngine(ctx context.Context, fn func(*progression.Engine) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	openCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	store, err := storage.Open(openCtx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(progression.NewEngine(store, log, progression.Options{
		DefaultCompassThreshold: cfg.DefaultCompassThreshold,
	}))
}

func newFinalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <session-id>",
		Short: "Score a finished session and award badges, bypassing the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(engine *progression.Engine) error {
				result, err := engine.FinalizeSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func newAchievementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "achievements <session-id>",
		Short: "Evaluate session achievements, bypassing the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(engine *progression.Engine) error {
				earned, err := engine.EvaluateAchievements(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"session_id":   args[0],
					"achievements": earned,
				})
			})
		},
	}
}

func newBadgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "badges <profile-id>",
		Short: "List the badges a profile holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(engine *progression.Engine) error {
				badges, err := engine.Badges.ListProfileBadges(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"profile_id": args[0],
					"badges":     badges,
				})
			})
		},
	}
}
