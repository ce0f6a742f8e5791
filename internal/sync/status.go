package sync

// Status is the aggregate sync state surfaced to the UI. It is derived from
// the queue on demand, never persisted.
type Status struct {
	// PendingCount is the number of queue items waiting for delivery.
	PendingCount int `json:"pending_count"`
	// ErrorCount is the number of queue items in error state, frozen ones
	// included.
	ErrorCount int `json:"error_count"`
	// IsSyncing is true while a sync pass is in flight.
	IsSyncing bool `json:"is_syncing"`
	// IsOnline is the last state reported by the connectivity monitor.
	IsOnline bool `json:"is_online"`
}

// Label derives the display state: syncing while a pass runs, otherwise
// offline, error, or synced.
func (s Status) Label() string {
	switch {
	case s.IsSyncing:
		return "syncing"
	case !s.IsOnline:
		return "offline"
	case s.ErrorCount > 0:
		return "error"
	default:
		return "synced"
	}
}

// Observer receives the aggregate status after every completed sync pass,
// connectivity transition, and manual queue mutation.
type Observer func(Status)

// PassResult summarizes one completed sync pass.
type PassResult struct {
	// Delivered is the number of items the remote side accepted.
	Delivered int `json:"delivered"`
	// Failed is the number of items whose delivery attempt failed.
	Failed int `json:"failed"`
	// Skipped is the number of items left pending because their entity
	// type is unknown to this binary.
	Skipped int `json:"skipped"`
	// Purged is the number of expired sent rows removed after the drain.
	Purged int64 `json:"purged"`
}
