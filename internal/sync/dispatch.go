package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agritrack/fieldsync/internal/mirror"
	"github.com/agritrack/fieldsync/internal/queue"
	"github.com/agritrack/fieldsync/internal/remote"
)

// delivery is one decoded queue item bound to its remote operation and
// mirror upsert.
type delivery struct {
	// entityID is the id carried in the payload, empty for create-without-id
	// items. The mirror is only touched when an id is present.
	entityID string

	submit       func(ctx context.Context, client remote.Client) error
	upsertMirror func(ctx context.Context, store *mirror.Store) error
}

// decodeFunc parses a payload into a delivery.
type decodeFunc func(payload json.RawMessage) (*delivery, error)

// dispatchTable maps each entity type to its decoder. Entity types absent
// from the table are skipped by the drain loop, not failed.
var dispatchTable = map[queue.EntityType]decodeFunc{
	queue.EntityDailyLog:    decodeDailyLog,
	queue.EntityMaintenance: decodeMaintenance,
	queue.EntityMachine:     decodeMachine,
}

func decodeDailyLog(payload json.RawMessage) (*delivery, error) {
	var l mirror.DailyLog
	if err := json.Unmarshal(payload, &l); err != nil {
		return nil, fmt.Errorf("failed to decode daily log payload: %w", err)
	}

	return &delivery{
		entityID: l.ID,
		submit: func(ctx context.Context, client remote.Client) error {
			return client.SubmitDailyLog(ctx, &l)
		},
		upsertMirror: func(ctx context.Context, store *mirror.Store) error {
			synced := l
			synced.Synced = true
			return store.UpsertDailyLog(ctx, &synced)
		},
	}, nil
}

func decodeMaintenance(payload json.RawMessage) (*delivery, error) {
	var r mirror.MaintenanceRecord
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("failed to decode maintenance payload: %w", err)
	}

	return &delivery{
		entityID: r.ID,
		submit: func(ctx context.Context, client remote.Client) error {
			return client.SubmitMaintenance(ctx, &r)
		},
		upsertMirror: func(ctx context.Context, store *mirror.Store) error {
			synced := r
			synced.Synced = true
			return store.UpsertMaintenance(ctx, &synced)
		},
	}, nil
}

func decodeMachine(payload json.RawMessage) (*delivery, error) {
	var m mirror.Machine
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("failed to decode machine payload: %w", err)
	}

	return &delivery{
		entityID: m.ID,
		submit: func(ctx context.Context, client remote.Client) error {
			return client.UpdateMachine(ctx, &m)
		},
		upsertMirror: func(ctx context.Context, store *mirror.Store) error {
			synced := m
			synced.Synced = true
			return store.UpsertMachine(ctx, &synced)
		},
	}, nil
}
