package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agritrack/fieldsync/internal/mirror"
	"github.com/agritrack/fieldsync/internal/queue"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <daily_log|maintenance|machine>",
	Short: "Queue a captured edit for delivery",
	Long: `Queue one captured edit for delivery to the backend.

The payload is a JSON snapshot of the entity, given with --payload or
read from a file with --file. When the payload has no id and --no-id is
not set, a new UUID is assigned so later edits to the same record
deduplicate in the queue.

Example usage:
  fieldsync enqueue daily_log --payload '{"machine_id":"M1","date":"2026-08-28","hm":1520.5}'
  fieldsync enqueue maintenance --file service.json
  fieldsync enqueue machine --payload '{"id":"M1","name":"Tractor 9","hm":1520.5}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType := queue.EntityType(args[0])
		switch entityType {
		case queue.EntityDailyLog, queue.EntityMaintenance, queue.EntityMachine:
		default:
			return fmt.Errorf("unknown entity type %q", args[0])
		}

		payload, err := readPayload(cmd)
		if err != nil {
			return err
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(payload, &fields); err != nil {
			return fmt.Errorf("payload is not a JSON object: %w", err)
		}

		var entityID string
		if raw, ok := fields["id"]; ok {
			if err := json.Unmarshal(raw, &entityID); err != nil {
				return fmt.Errorf("payload id is not a string: %w", err)
			}
		}

		noID, _ := cmd.Flags().GetBool("no-id")
		if entityID == "" && !noID {
			entityID = uuid.NewString()
			fields["id"], _ = json.Marshal(entityID)
			if payload, err = json.Marshal(fields); err != nil {
				return err
			}
		}

		store, mirrorStore, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		itemID, err := store.Enqueue(ctx, entityType, entityID, payload)
		if err != nil {
			return err
		}

		// Optimistic local write so offline reads see the edit immediately.
		if entityID != "" {
			if err := applyToMirror(cmd, mirrorStore, entityType, payload); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to update local mirror: %v\n", err)
			}
		}

		if entityID != "" {
			fmt.Printf("Queued %s %s (item %d)\n", entityType, entityID, itemID)
		} else {
			fmt.Printf("Queued %s without id (item %d)\n", entityType, itemID)
		}
		return nil
	},
}

func readPayload(cmd *cobra.Command) ([]byte, error) {
	inline, _ := cmd.Flags().GetString("payload")
	file, _ := cmd.Flags().GetString("file")

	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either --payload or --file, not both")
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("a payload is required (--payload or --file)")
	}
}

func applyToMirror(cmd *cobra.Command, store *mirror.Store, entityType queue.EntityType, payload []byte) error {
	ctx := cmd.Context()
	switch entityType {
	case queue.EntityDailyLog:
		var l mirror.DailyLog
		if err := json.Unmarshal(payload, &l); err != nil {
			return err
		}
		return store.UpsertDailyLog(ctx, &l)
	case queue.EntityMaintenance:
		var r mirror.MaintenanceRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return err
		}
		return store.UpsertMaintenance(ctx, &r)
	case queue.EntityMachine:
		var m mirror.Machine
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		return store.UpsertMachine(ctx, &m)
	}
	return nil
}

func init() {
	enqueueCmd.Flags().String("payload", "", "Entity snapshot as inline JSON")
	enqueueCmd.Flags().String("file", "", "Read the entity snapshot from a JSON file")
	enqueueCmd.Flags().Bool("no-id", false, "Queue without assigning an id (no deduplication)")
	rootCmd.AddCommand(enqueueCmd)
}
