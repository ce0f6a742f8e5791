package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the sync queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts and items",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		pending, errCount, err := store.Counts(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Queue: %d pending, %d failed\n", pending, errCount)

		verbose, _ := cmd.Flags().GetBool("verbose")
		if !verbose {
			return nil
		}

		items, err := store.List(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tENTITY\tSTATUS\tATTEMPTS\tUPDATED\tLAST ERROR")
		for _, it := range items {
			status := string(it.Status)
			if it.Frozen(store.MaxAttempts) {
				status = "error (frozen)"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
				it.ID, it.EntityType, it.EntityID, status, it.Attempts,
				it.UpdatedAt.Local().Format(time.DateTime), it.LastError)
		}
		return w.Flush()
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset failed items and sync again",
	Long: `Reset every failed item back to pending, clearing attempt counts,
and run a sync pass. Frozen items become eligible for delivery again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mirrorStore, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		orch := buildOrchestrator(store, mirrorStore)
		ctx := cmd.Context()
		orch.SetOnline(ctx, checkHealth(cfg.Remote.HealthURL))

		n, err := orch.RetryErrors(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d failed items\n", n)

		status, err := orch.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Queue: %d pending, %d failed\n", status.PendingCount, status.ErrorCount)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Permanently delete failed items",
	Long: `Permanently delete every failed item from the queue.

This drops the captured edits; the data cannot be recovered. Requires
--yes to confirm.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to delete failed items without --yes")
		}

		store, mirrorStore, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		orch := buildOrchestrator(store, mirrorStore)
		n, err := orch.ClearErrors(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d failed items\n", n)
		return nil
	},
}

func init() {
	queueStatusCmd.Flags().BoolP("verbose", "v", false, "List individual queue items")
	queueClearCmd.Flags().Bool("yes", false, "Confirm deletion")

	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
