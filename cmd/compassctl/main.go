// Command compassctl enqueues progression requests, runs them in-process
// and validates badge files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "compassctl",
		Short: "Operate the compass progression engine",
		Long: `compassctl talks to the same Redis queue and storage as the worker.

Configuration comes from the environment (or a .env file): REDIS_URL,
STORAGE_DRIVER, SQLITE_PATH, DATA_DIR and DEFAULT_COMPASS_THRESHOLD.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newEnqueueCmd(),
		newFinalizeCmd(),
		newAchievementsCmd(),
		newBadgesCmd(),
		newValidateBadgesCmd(),
		newStatusCmd(),
		newWatchCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
