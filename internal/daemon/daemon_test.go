package daemon

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/agritrack/fieldsync/internal/connectivity"
	"github.com/agritrack/fieldsync/internal/mirror"
	"github.com/agritrack/fieldsync/internal/queue"
	syncpkg "github.com/agritrack/fieldsync/internal/sync"
)

// acceptAll is a remote client that accepts everything.
type acceptAll struct{}

func (acceptAll) SubmitDailyLog(ctx context.Context, l *mirror.DailyLog) error          { return nil }
func (acceptAll) SubmitMaintenance(ctx context.Context, r *mirror.MaintenanceRecord) error { return nil }
func (acceptAll) UpdateMachine(ctx context.Context, m *mirror.Machine) error            { return nil }

func newTestDaemon(t *testing.T, monitor connectivity.Monitor, interval time.Duration) (*Daemon, *queue.Store) {
	t.Helper()

	ctx := context.Background()
	store, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	mirrorStore := mirror.New(store.RawDB())
	if err := mirrorStore.InitSchema(ctx); err != nil {
		t.Fatalf("mirror InitSchema() error = %v", err)
	}

	syncCfg := syncpkg.DefaultConfig()
	syncCfg.Cooldown = 0
	syncCfg.Logger = log.New(io.Discard, "", 0)
	orch := syncpkg.New(store, mirrorStore, acceptAll{}, syncCfg)

	cfg := DefaultConfig()
	cfg.SyncInterval = interval
	cfg.Logger = log.New(io.Discard, "", 0)

	d, err := New(orch, monitor, nil, nil, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d, store
}

func waitForPending(t *testing.T, store *queue.Store, want int) {
	t.Helper()

	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pending, _, err := store.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts() error = %v", err)
		}
		if pending == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for pending count %d", want)
}

func TestConnectivityRegainTriggersSync(t *testing.T) {
	ctx := context.Background()
	monitor := connectivity.NewManual(false)
	d, store := newTestDaemon(t, monitor, time.Hour)

	if _, err := store.Enqueue(ctx, queue.EntityDailyLog, "L1", []byte(`{"id":"L1","hm":2}`)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Start(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Still offline, nothing drains.
	time.Sleep(50 * time.Millisecond)
	pending, _, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if pending != 1 {
		t.Fatalf("pending = %d before connectivity, want 1", pending)
	}

	monitor.SetOnline(true)
	waitForPending(t, store, 0)
}

func TestPeriodicTimerDrainsQueue(t *testing.T) {
	ctx := context.Background()
	monitor := connectivity.NewManual(true)
	d, store := newTestDaemon(t, monitor, 20*time.Millisecond)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Start(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Enqueued after startup, so only the timer can pick it up.
	time.Sleep(30 * time.Millisecond)
	if _, err := store.Enqueue(ctx, queue.EntityDailyLog, "L2", []byte(`{"id":"L2","hm":4}`)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitForPending(t, store, 0)
}

func TestStopShutsDownCleanly(t *testing.T) {
	monitor := connectivity.NewManual(true)
	d, _ := newTestDaemon(t, monitor, time.Hour)

	done := make(chan error, 1)
	go func() { done <- d.Start(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	d.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
