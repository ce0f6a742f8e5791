// Package mirror holds local read-optimized copies of the domain entities so
// the UI can render data while offline.
//
// Mirror rows are written optimistically at enqueue time (synced=false) and
// flagged synced=true once the orchestrator confirms the remote system of
// record accepted the change. Upserts are last-write-wins by the entity's own
// id; there is no versioning and no delete operation in this layer.
package mirror
