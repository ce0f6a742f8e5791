// Package remote implements the client for the remote system of record.
//
// The sync orchestrator depends only on the Client interface: one idempotent
// mutation per entity type. The HTTP implementation posts JSON snapshots to
// the configured base URL and classifies failures into transient (network
// errors, 5xx, timeouts) and permanent (4xx) via the Error type. The retry
// policy upstream treats both the same; the classification exists for
// logging and diagnosis.
//
// The server is assumed to be idempotent by entity id, so re-submitting a
// payload that a crashed attempt already delivered is safe.
package remote
