// Package queue implements the durable outbound work queue for fieldsync.
//
// Every edit captured while the device is offline becomes a queue item: a
// serialized payload tagged with the entity type it belongs to and, when the
// entity already has an identity, the entity id. The sync orchestrator drains
// due items, delivers them to the remote system of record, and records the
// outcome back into the queue.
//
// The queue is a single SQLite table (WAL mode, embedded driver). Invariants:
//
//   - At most one pending-or-error row exists per (entity_type, entity_id)
//     pair with a non-empty entity id. Re-enqueuing the same logical entity
//     overwrites the row's payload and resets it to pending with zero
//     attempts. This is enforced by a partial unique index plus an
//     ON CONFLICT upsert, so the check-and-write is a single atomic
//     statement.
//   - Rows with an empty entity id are never deduplicated; each one is an
//     independent create.
//   - Sent rows are retained for a bounded window and then purged.
//
// Every mutation is a single SQL statement, so a crash mid-call cannot leave
// a row half-updated.
package queue
