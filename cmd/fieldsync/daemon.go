package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agritrack/fieldsync/internal/connectivity"
	"github.com/agritrack/fieldsync/internal/daemon"
	"github.com/agritrack/fieldsync/internal/dashboard"
	"github.com/agritrack/fieldsync/internal/inbox"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the long-lived sync daemon.

The daemon probes the backend health endpoint to track connectivity,
drains the queue on a periodic timer while work is waiting, triggers an
immediate sync pass when connectivity returns, and optionally ingests
capture envelopes from an inbox directory and serves a WebSocket
dashboard.

Example usage:
  fieldsync daemon                       # Run with config defaults
  fieldsync daemon --dashboard           # Also serve the dashboard
  fieldsync daemon --inbox ./envelopes   # Also watch an inbox directory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mirrorStore, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		orch := buildOrchestrator(store, mirrorStore)

		probe := connectivity.NewProbe(connectivity.ProbeConfig{
			HealthURL: cfg.Remote.HealthURL,
			Interval:  cfg.Remote.ProbeInterval,
		})

		var inboxWatcher *inbox.Watcher
		if cfg.Inbox.Enabled {
			inboxWatcher, err = inbox.New(store, mirrorStore, cfg.Inbox.Dir, nil)
			if err != nil {
				return err
			}
		}

		var dashboardServer *dashboard.Server
		if cfg.Dashboard.Enabled {
			dashboardServer = dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
			}, orch)
		}

		daemonCfg := daemon.DefaultConfig()
		daemonCfg.SyncInterval = cfg.Sync.Interval

		d, err := daemon.New(orch, probe, inboxWatcher, dashboardServer, daemonCfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		probe.Start(ctx)
		defer probe.Stop()

		fmt.Printf("fieldsync daemon started (db: %s)\n", cfg.DB.Path)
		if cfg.Dashboard.Enabled {
			fmt.Printf("Dashboard: http://localhost:%d\n", cfg.Dashboard.Port)
		}
		fmt.Println("Press Ctrl+C to stop...")

		return d.Start(ctx)
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the WebSocket dashboard")
	daemonCmd.Flags().String("inbox", "", "Watch this directory for capture envelopes")
	daemonCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if on, _ := cmd.Flags().GetBool("dashboard"); on {
			cfg.Dashboard.Enabled = true
		}
		if dir, _ := cmd.Flags().GetString("inbox"); dir != "" {
			cfg.Inbox.Enabled = true
			cfg.Inbox.Dir = dir
		}
	}
	rootCmd.AddCommand(daemonCmd)
}
