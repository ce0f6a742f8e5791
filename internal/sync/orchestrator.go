package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/agritrack/fieldsync/internal/mirror"
	"github.com/agritrack/fieldsync/internal/queue"
	"github.com/agritrack/fieldsync/internal/remote"
)

// Config holds the sync policy knobs.
type Config struct {
	// Cooldown is the minimum delay between delivery attempts for the same
	// item.
	Cooldown time.Duration
	// BatchLimit caps how many items one pass drains.
	BatchLimit int
	// Retention is how long sent rows are kept before purging.
	Retention time.Duration
	// Logger for orchestrator activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// DefaultConfig returns the policy from the sync design: 30s cooldown,
// batches of 50, 7 day retention.
func DefaultConfig() *Config {
	return &Config{
		Cooldown:   queue.DefaultCooldown,
		BatchLimit: queue.DefaultBatchLimit,
		Retention:  queue.DefaultRetention,
	}
}

// Orchestrator drains the queue and delivers items to the remote client.
//
// The guard flag is per-instance state, so independent orchestrators (as in
// tests) never interfere with each other.
type Orchestrator struct {
	store  *queue.Store
	mirror *mirror.Store
	remote remote.Client
	cfg    *Config
	logger *log.Logger

	mu      sync.Mutex
	syncing bool
	online  bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// New creates an orchestrator. The store and mirror must have their schemas
// initialized. The orchestrator starts offline; connectivity is reported via
// SetOnline.
func New(store *queue.Store, mirrorStore *mirror.Store, client remote.Client, cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	return &Orchestrator{
		store:     store,
		mirror:    mirrorStore,
		remote:    client,
		cfg:       cfg,
		logger:    logger,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer for status updates. The returned cancel
// function removes it.
func (o *Orchestrator) Subscribe(obs Observer) (cancel func()) {
	o.obsMu.Lock()
	id := o.nextObs
	o.nextObs++
	o.observers[id] = obs
	o.obsMu.Unlock()

	return func() {
		o.obsMu.Lock()
		delete(o.observers, id)
		o.obsMu.Unlock()
	}
}

// SetOnline records the connectivity state reported by the monitor and
// notifies observers on a transition. The caller decides whether regaining
// connectivity should trigger a pass.
func (o *Orchestrator) SetOnline(ctx context.Context, online bool) {
	o.mu.Lock()
	changed := o.online != online
	o.online = online
	o.mu.Unlock()

	if changed {
		o.notifyObservers(ctx)
	}
}

// Online returns the last recorded connectivity state.
func (o *Orchestrator) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// Status recomputes the aggregate sync status from the queue.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	pending, errs, err := o.store.Counts(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to compute sync status: %w", err)
	}

	o.mu.Lock()
	syncing, online := o.syncing, o.online
	o.mu.Unlock()

	return Status{
		PendingCount: pending,
		ErrorCount:   errs,
		IsSyncing:    syncing,
		IsOnline:     online,
	}, nil
}

// TrySync runs one sync pass if none is in flight and the device is online.
// Returns nil, nil when the pass did not run. All triggers (timer,
// connectivity regain, manual) go through here, so mutual exclusion holds
// regardless of who asks.
func (o *Orchestrator) TrySync(ctx context.Context) (*PassResult, error) {
	o.mu.Lock()
	if o.syncing || !o.online {
		o.mu.Unlock()
		return nil, nil
	}
	o.syncing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.syncing = false
		o.mu.Unlock()
		o.notifyObservers(ctx)
	}()

	result, err := o.runPass(ctx)
	if err != nil {
		o.logger.Printf("Sync pass aborted: %v", err)
		return nil, err
	}

	return result, nil
}

// RetryErrors resets every error item to pending and triggers a sync pass.
// Returns the number of items reset.
func (o *Orchestrator) RetryErrors(ctx context.Context) (int64, error) {
	n, err := o.store.ResetErrors(ctx)
	if err != nil {
		return 0, err
	}

	o.logger.Printf("Reset %d failed items for retry", n)
	o.notifyObservers(ctx)

	if _, err := o.TrySync(ctx); err != nil {
		// The reset itself succeeded; the pass will be retried on the
		// next trigger.
		o.logger.Printf("Retry sync pass failed: %v", err)
	}

	return n, nil
}

// ClearErrors permanently deletes every error item. Irreversible; callers
// own the confirmation flow. Returns the number of items removed.
func (o *Orchestrator) ClearErrors(ctx context.Context) (int64, error) {
	n, err := o.store.DeleteErrors(ctx)
	if err != nil {
		return 0, err
	}

	o.logger.Printf("Cleared %d failed items", n)
	o.notifyObservers(ctx)
	return n, nil
}

// runPass drains one batch of due items sequentially. Sequential delivery
// preserves relative ordering within the pass and keeps load on the remote
// endpoint bounded.
func (o *Orchestrator) runPass(ctx context.Context) (*PassResult, error) {
	start := time.Now()

	items, err := o.store.Due(ctx, o.cfg.BatchLimit, o.cfg.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due items: %w", err)
	}

	result := &PassResult{}
	if len(items) == 0 {
		return result, nil
	}

	o.logger.Printf("Sync pass: %d due items", len(items))

	for _, it := range items {
		if err := o.deliver(ctx, it, result); err != nil {
			// Only storage faults propagate; they abort the pass.
			return nil, err
		}
	}

	purged, err := o.store.PurgeSentOlderThan(ctx, o.cfg.Retention)
	if err != nil {
		// Retention is best-effort; a failed sweep never fails the pass.
		o.logger.Printf("Warning: retention sweep failed: %v", err)
	} else {
		result.Purged = purged
	}

	o.logger.Printf("Sync pass complete in %v: delivered=%d failed=%d skipped=%d purged=%d",
		time.Since(start).Round(time.Millisecond),
		result.Delivered, result.Failed, result.Skipped, result.Purged)

	return result, nil
}

// deliver attempts one item. Remote failures are recorded on the item and
// contained; a returned error means the queue store itself failed.
func (o *Orchestrator) deliver(ctx context.Context, it *queue.Item, result *PassResult) error {
	decode, ok := dispatchTable[it.EntityType]
	if !ok {
		// Forward-compatibility guard: leave the item pending for a
		// binary that understands it.
		o.logger.Printf("Unknown entity type %q on item %d, skipping", it.EntityType, it.ID)
		result.Skipped++
		return nil
	}

	del, err := decode(it.Payload)
	if err != nil {
		// An undecodable payload can never succeed; count it against the
		// attempt ceiling so it freezes instead of cycling forever.
		o.logger.Printf("Item %d payload rejected: %v", it.ID, err)
		if err := o.store.MarkFailed(ctx, it.ID, err.Error()); err != nil {
			return err
		}
		result.Failed++
		return nil
	}

	if err := del.submit(ctx, o.remote); err != nil {
		o.logFailure(it, err)
		if err := o.store.MarkFailed(ctx, it.ID, err.Error()); err != nil {
			return err
		}
		result.Failed++
		return nil
	}

	if err := o.store.MarkSent(ctx, it.ID); err != nil {
		return err
	}
	result.Delivered++

	// Items without an entity id have nothing to reconcile in the mirror.
	if del.entityID != "" {
		if err := del.upsertMirror(ctx, o.mirror); err != nil {
			// Known gap: the item stays sent and the mirror stays stale
			// until the next successful edit of this entity.
			o.logger.Printf("Warning: mirror upsert for %s/%s failed after send: %v",
				it.EntityType, del.entityID, err)
		}
	}

	return nil
}

func (o *Orchestrator) logFailure(it *queue.Item, err error) {
	kind := "permanent"
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) && remoteErr.Temporary() {
		kind = "transient"
	}

	attempts := it.Attempts + 1
	if attempts >= o.store.MaxAttempts {
		o.logger.Printf("Item %d (%s/%s) failed (%s), attempt %d/%d, frozen until manual retry: %v",
			it.ID, it.EntityType, it.EntityID, kind, attempts, o.store.MaxAttempts, err)
		return
	}
	o.logger.Printf("Item %d (%s/%s) failed (%s), attempt %d/%d: %v",
		it.ID, it.EntityType, it.EntityID, kind, attempts, o.store.MaxAttempts, err)
}

// notifyObservers recomputes the status once and fans it out.
func (o *Orchestrator) notifyObservers(ctx context.Context) {
	status, err := o.Status(ctx)
	if err != nil {
		o.logger.Printf("Warning: failed to compute status for observers: %v", err)
		return
	}

	o.obsMu.Lock()
	obs := make([]Observer, 0, len(o.observers))
	for _, fn := range o.observers {
		obs = append(obs, fn)
	}
	o.obsMu.Unlock()

	for _, fn := range obs {
		fn(status)
	}
}
