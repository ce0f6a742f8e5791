// Package daemon runs the long-lived sync loop.
//
// The daemon wires the pieces together: it subscribes to the connectivity
// monitor, feeds transitions into the orchestrator, triggers a sync pass
// when connectivity returns, and runs a periodic timer that drains the
// queue while work is waiting. The inbox watcher and dashboard server are
// optional attachments started and stopped with the daemon.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/agritrack/fieldsync/internal/connectivity"
	"github.com/agritrack/fieldsync/internal/dashboard"
	"github.com/agritrack/fieldsync/internal/inbox"
	syncpkg "github.com/agritrack/fieldsync/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often the periodic timer considers a sync pass.
	SyncInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 30 * time.Second,
		Logger:       log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon owns the background sync loop and its attachments.
type Daemon struct {
	orch    *syncpkg.Orchestrator
	monitor connectivity.Monitor
	config  *Config

	// Optional attachments, nil when disabled.
	inbox     *inbox.Watcher
	dashboard *dashboard.Server

	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a daemon. monitor drives the orchestrator's online state;
// inboxWatcher and dashboardServer may be nil.
func New(orch *syncpkg.Orchestrator, monitor connectivity.Monitor, inboxWatcher *inbox.Watcher, dashboardServer *dashboard.Server, config *Config) (*Daemon, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if monitor == nil {
		return nil, fmt.Errorf("connectivity monitor cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	return &Daemon{
		orch:      orch,
		monitor:   monitor,
		config:    config,
		inbox:     inboxWatcher,
		dashboard: dashboardServer,
	}, nil
}

// Start brings up the attachments and background loops, then blocks until
// ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting sync daemon")

	ctx, d.cancel = context.WithCancel(ctx)

	if d.dashboard != nil {
		if err := d.dashboard.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		d.orch.Subscribe(d.dashboard.BroadcastStatus)
	}

	if d.inbox != nil {
		if err := d.inbox.Start(ctx); err != nil {
			return fmt.Errorf("failed to start inbox watcher: %w", err)
		}
	}

	// Connectivity transitions feed the orchestrator; regaining the link
	// triggers an immediate pass so queued work does not wait for the timer.
	d.unsubscribe = d.monitor.Subscribe(func(online bool) {
		d.orch.SetOnline(ctx, online)
		if d.dashboard != nil {
			d.dashboard.BroadcastConnectivity(online)
		}
		if online {
			d.config.Logger.Println("Connectivity regained, triggering sync")
			go d.runSync(ctx)
		} else {
			d.config.Logger.Println("Connectivity lost")
		}
	})

	d.wg.Add(1)
	go d.syncLoop(ctx)

	<-ctx.Done()
	d.config.Logger.Println("Shutdown signal received")
	return d.shutdown()
}

// Stop gracefully shuts the daemon down.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) shutdown() error {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}

	d.wg.Wait()

	if d.inbox != nil {
		if err := d.inbox.Stop(); err != nil {
			d.config.Logger.Printf("Error stopping inbox watcher: %v", err)
		}
	}
	if d.dashboard != nil {
		if err := d.dashboard.Stop(); err != nil {
			d.config.Logger.Printf("Error stopping dashboard: %v", err)
		}
	}

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// syncLoop fires the periodic timer. A tick only triggers a pass when work
// is actually waiting, so an idle daemon does not hammer the endpoint.
func (d *Daemon) syncLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			status, err := d.orch.Status(ctx)
			if err != nil {
				d.config.Logger.Printf("Error reading status: %v", err)
				continue
			}
			if !status.IsOnline || status.PendingCount+status.ErrorCount == 0 {
				continue
			}
			d.runSync(ctx)
		}
	}
}

// runSync executes one pass and reports the result to the dashboard.
func (d *Daemon) runSync(ctx context.Context) {
	result, err := d.orch.TrySync(ctx)
	if err != nil {
		d.config.Logger.Printf("Sync pass failed: %v", err)
		return
	}
	if result == nil {
		// Another trigger is already running a pass, or we went offline.
		return
	}
	if d.dashboard != nil {
		d.dashboard.BroadcastPassComplete(*result)
	}
}
