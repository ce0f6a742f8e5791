package queue

import (
	"encoding/json"
	"time"
)

// EntityType tags a queue item with the domain entity it mutates. The tag
// selects both the remote operation and the mirror table touched after a
// successful delivery.
type EntityType string

const (
	// EntityDailyLog is a daily machine operation log entry.
	EntityDailyLog EntityType = "daily_log"
	// EntityMaintenance is a maintenance record for a machine.
	EntityMaintenance EntityType = "maintenance"
	// EntityMachine is an edit to machine master data.
	EntityMachine EntityType = "machine"
)

// Status is the delivery state of a queue item.
type Status string

const (
	// StatusPending marks an item waiting for its first or next delivery.
	StatusPending Status = "pending"
	// StatusSent marks an item the remote side has accepted.
	StatusSent Status = "sent"
	// StatusError marks an item whose last delivery attempt failed.
	StatusError Status = "error"
)

// Defaults for the sync policy. The orchestrator and CLI read these; the
// store itself only hard-codes MaxAttempts as its retry ceiling default.
const (
	// DefaultMaxAttempts is the automatic retry ceiling. Items that fail
	// this many times are frozen until a manual retry resets them.
	DefaultMaxAttempts = 5
	// DefaultCooldown is the minimum delay between delivery attempts for
	// the same item.
	DefaultCooldown = 30 * time.Second
	// DefaultBatchLimit caps how many items a single sync pass drains.
	DefaultBatchLimit = 50
	// DefaultRetention is how long sent rows are kept before purging.
	DefaultRetention = 7 * 24 * time.Hour
)

// Item is one durable record of outbound work.
type Item struct {
	ID         int64
	EntityType EntityType
	// EntityID is the dedup key together with EntityType. Empty means the
	// entity has no identity yet and the item is never deduplicated.
	EntityID string
	// Payload is the serialized snapshot to submit remotely. The store
	// treats it as opaque.
	Payload  json.RawMessage
	Status   Status
	Attempts int
	// LastError holds the most recent failure description, empty after a
	// success or reset.
	LastError string
	// LastAttemptAt is nil until the first delivery attempt. It drives the
	// retry cooldown.
	LastAttemptAt *time.Time
	// UpdatedAt is the last mutation time. Due items are drained oldest
	// first by this field.
	UpdatedAt time.Time
}

// Frozen reports whether the item has exhausted its automatic retries and
// needs manual intervention.
func (it *Item) Frozen(maxAttempts int) bool {
	return it.Status == StatusError && it.Attempts >= maxAttempts
}
