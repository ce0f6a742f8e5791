// Package sync implements the synchronization orchestrator: the state
// machine that drains the durable queue and delivers captured edits to the
// remote system of record.
//
// A sync pass is one bounded run: fetch due items, deliver each one
// sequentially (oldest update first), record outcomes, purge expired sent
// rows, and notify observers. At most one pass runs at a time per
// orchestrator instance, enforced by an in-process guard flag; the periodic
// timer, connectivity regain, and manual triggers all converge on that
// guard and no-op when a pass is already in flight or the device is
// offline.
//
// Failure containment:
//
//   - An individual item's remote failure never aborts the batch. The item
//     is marked failed and the pass moves on. After the attempt ceiling the
//     item is frozen until a manual retry resets it.
//   - An unknown entity type is skipped and left pending. This is a
//     forward-compatibility guard: a newer capture surface may enqueue
//     types this binary does not know yet.
//   - A queue storage fault aborts the current pass only; the next trigger
//     retries.
//
// Entity-type dispatch is a lookup table binding each type to its payload
// decoder, remote operation, and mirror upsert, so adding an entity type is
// one table entry plus one typed client method.
package sync
