package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass now",
	Long: `Run a single sync pass against the backend and exit.

The command checks the backend health endpoint once; if it is reachable,
due queue items are delivered in one pass. Use this from cron or scripts
when the daemon is not running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mirrorStore, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		orch := buildOrchestrator(store, mirrorStore)

		ctx := cmd.Context()
		orch.SetOnline(ctx, checkHealth(cfg.Remote.HealthURL))

		result, err := orch.TrySync(ctx)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Println("Backend unreachable, nothing synced")
			status, err := orch.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Queue: %d pending, %d failed\n", status.PendingCount, status.ErrorCount)
			return nil
		}

		fmt.Printf("Sync pass complete: %d delivered, %d failed, %d skipped\n",
			result.Delivered, result.Failed, result.Skipped)
		if result.Purged > 0 {
			fmt.Printf("Purged %d expired sent items\n", result.Purged)
		}
		return nil
	},
}

// checkHealth probes the backend health endpoint once.
func checkHealth(url string) bool {
	resp, err := http.Head(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
