// Package inbox ingests capture envelopes dropped as JSON files.
//
// Capture surfaces that cannot link the sync core directly (shell scripts,
// older collectors) write one envelope file per edit into the inbox
// directory. The watcher picks each file up, enqueues it for delivery,
// applies it optimistically to the entity mirror, and removes the file.
// A full directory scan runs on startup so envelopes written while the
// daemon was down are not lost.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agritrack/fieldsync/internal/mirror"
	"github.com/agritrack/fieldsync/internal/queue"
)

// Envelope is the on-disk ingestion format: one edit to one entity.
type Envelope struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
}

// Config holds watcher tuning.
type Config struct {
	// DebounceInterval is how long a file must sit unchanged before it is
	// processed. Batches rapid rewrites of the same envelope.
	DebounceInterval time.Duration

	// Logger for ingestion activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[inbox] ", log.LstdFlags),
	}
}

// Watcher ingests envelope files from a single inbox directory.
type Watcher struct {
	store  *queue.Store
	mirror *mirror.Store
	dir    string
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher over the given inbox directory. The directory is
// created if missing. Use Start to begin ingesting.
func New(store *queue.Store, mirrorStore *mirror.Store, dir string, config *Config) (*Watcher, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("inbox directory cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		store:       store,
		mirror:      mirrorStore,
		dir:         dir,
		config:      config,
		watcher:     fsw,
		changeQueue: make(map[string]time.Time),
	}, nil
}

// Start scans the inbox for leftover envelopes, then begins watching for new
// ones. Non-blocking; call Stop to shut down.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.ScanOnce(ctx); err != nil {
		return fmt.Errorf("initial inbox scan failed: %w", err)
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.config.Logger.Printf("Watching inbox: %s", w.dir)

	w.wg.Add(2)
	go w.watchFileEvents(ctx)
	go w.drainChangeQueue(ctx)

	return nil
}

// Stop shuts the watcher down and waits for in-flight processing.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()
	return nil
}

// ScanOnce processes every envelope currently in the inbox. Called on
// startup and usable standalone for one-shot ingestion.
func (w *Watcher) ScanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox directory: %w", err)
	}

	var n int
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.ProcessFile(ctx, path); err != nil {
			w.config.Logger.Printf("Error processing %s: %v", path, err)
			continue
		}
		n++
	}

	if n > 0 {
		w.config.Logger.Printf("Ingested %d envelopes from startup scan", n)
	}
	return nil
}

// ProcessFile ingests one envelope file: enqueue for delivery, mirror the
// edit locally, remove the file. A malformed envelope is renamed aside with
// a .rejected suffix so it stops retriggering but stays inspectable.
func (w *Watcher) ProcessFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read envelope: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		w.rejectFile(path, fmt.Errorf("malformed envelope: %w", err))
		return nil
	}
	if env.EntityType == "" || len(env.Payload) == 0 {
		w.rejectFile(path, fmt.Errorf("envelope missing entity_type or payload"))
		return nil
	}

	id, err := w.store.Enqueue(ctx, queue.EntityType(env.EntityType), env.EntityID, env.Payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue envelope: %w", err)
	}

	// Optimistic local write so offline reads see the edit before delivery.
	if w.mirror != nil && env.EntityID != "" {
		if err := w.applyToMirror(ctx, &env); err != nil {
			w.config.Logger.Printf("Warning: mirror apply for %s/%s failed: %v",
				env.EntityType, env.EntityID, err)
		}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ingested envelope: %w", err)
	}

	w.config.Logger.Printf("Ingested %s/%s as queue item %d", env.EntityType, env.EntityID, id)
	return nil
}

// applyToMirror writes the captured edit into the local mirror, unsynced.
func (w *Watcher) applyToMirror(ctx context.Context, env *Envelope) error {
	switch queue.EntityType(env.EntityType) {
	case queue.EntityDailyLog:
		var l mirror.DailyLog
		if err := json.Unmarshal(env.Payload, &l); err != nil {
			return err
		}
		l.Synced = false
		return w.mirror.UpsertDailyLog(ctx, &l)
	case queue.EntityMaintenance:
		var r mirror.MaintenanceRecord
		if err := json.Unmarshal(env.Payload, &r); err != nil {
			return err
		}
		r.Synced = false
		return w.mirror.UpsertMaintenance(ctx, &r)
	case queue.EntityMachine:
		var m mirror.Machine
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return err
		}
		m.Synced = false
		return w.mirror.UpsertMachine(ctx, &m)
	default:
		// Unknown types are queued for delivery but have no mirror table.
		return nil
	}
}

func (w *Watcher) rejectFile(path string, cause error) {
	w.config.Logger.Printf("Rejecting %s: %v", path, cause)
	if err := os.Rename(path, path+".rejected"); err != nil {
		w.config.Logger.Printf("Error setting aside rejected envelope: %v", err)
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (w *Watcher) watchFileEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			w.queueChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) queueChange(path string) {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()
	w.changeQueue[path] = time.Now()
}

// drainChangeQueue processes queued files once they have sat unchanged for
// the debounce interval.
func (w *Watcher) drainChangeQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Watcher) processPending(ctx context.Context) {
	w.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range w.changeQueue {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(w.changeQueue, path)
	}
	w.changeQueueMu.Unlock()

	for _, path := range ready {
		if err := w.ProcessFile(ctx, path); err != nil {
			w.config.Logger.Printf("Error processing %s: %v", path, err)
		}
	}
}
