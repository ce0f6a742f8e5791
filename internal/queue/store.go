package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is the durable queue backed by an embedded SQLite database.
//
// All methods are safe for concurrent use; SQLite serializes writers and WAL
// mode keeps readers unblocked during writes.
type Store struct {
	conn *sql.DB
	path string

	// MaxAttempts is the retry ceiling applied by Due. Defaults to
	// DefaultMaxAttempts.
	MaxAttempts int

	// now is the clock, injectable for tests.
	now func() time.Time
}

// Open creates (or opens) the queue database at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := queue.Open(".fieldsync/queue.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:        conn,
		path:        path,
		MaxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection. The entity mirror shares
// this connection so queue and mirror live in one database file.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close checkpoints the WAL and closes the database connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the queue table and indexes if they don't exist.
// Idempotent - safe to call multiple times.
//
// Timestamps are stored as Unix milliseconds so range comparisons in SQL are
// exact regardless of formatting.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_attempt_at INTEGER,
		updated_at INTEGER NOT NULL
	);

	-- Dedup invariant: one live row per (entity_type, entity_id) when the
	-- entity has an identity. Sent rows fall outside the index, so a new
	-- edit after a successful sync creates a fresh pending row.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_dedup
	    ON queue_items(entity_type, entity_id)
	    WHERE entity_id <> '' AND status IN ('pending', 'error');

	CREATE INDEX IF NOT EXISTS idx_queue_status ON queue_items(status);
	CREATE INDEX IF NOT EXISTS idx_queue_due
	    ON queue_items(status, attempts, last_attempt_at, updated_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize queue schema: %w", err)
	}

	return nil
}

// Enqueue records outbound work for an entity and returns the queue item id.
//
// When entityID is non-empty and a pending or error row already exists for
// (entityType, entityID), that row is overwritten: new payload, status reset
// to pending, attempts back to zero. A rapid sequence of edits to the same
// entity therefore collapses into one outbound delivery of the latest
// payload. The whole upsert is a single statement.
func (s *Store) Enqueue(ctx context.Context, entityType EntityType, entityID string, payload []byte) (int64, error) {
	query := `
	INSERT INTO queue_items (entity_type, entity_id, payload, status, attempts, last_error, last_attempt_at, updated_at)
	VALUES (?, ?, ?, 'pending', 0, NULL, NULL, ?)
	ON CONFLICT (entity_type, entity_id) WHERE entity_id <> '' AND status IN ('pending', 'error')
	DO UPDATE SET
		payload = excluded.payload,
		status = 'pending',
		attempts = 0,
		last_error = NULL,
		last_attempt_at = NULL,
		updated_at = excluded.updated_at
	RETURNING id
	`

	var id int64
	err := s.conn.QueryRowContext(ctx, query,
		string(entityType),
		entityID,
		string(payload),
		s.now().UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s/%s: %w", entityType, entityID, err)
	}

	return id, nil
}

// Due returns items eligible for delivery, oldest update first.
//
// An item is due when it is pending, or in error with fewer than MaxAttempts
// attempts, and its last attempt (if any) is at least cooldown in the past.
// limit caps the batch; 0 falls back to DefaultBatchLimit.
func (s *Store) Due(ctx context.Context, limit int, cooldown time.Duration) ([]*Item, error) {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	cutoff := s.now().Add(-cooldown).UnixMilli()

	query := `
	SELECT id, entity_type, entity_id, payload, status, attempts, last_error, last_attempt_at, updated_at
	FROM queue_items
	WHERE (status = 'pending' OR (status = 'error' AND attempts < ?))
	  AND (last_attempt_at IS NULL OR last_attempt_at <= ?)
	ORDER BY updated_at ASC
	LIMIT ?
	`

	rows, err := s.conn.QueryContext(ctx, query, s.MaxAttempts, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// MarkSent records a successful delivery: status sent, error cleared,
// updated_at stamped. Idempotent.
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	query := `
	UPDATE queue_items
	SET status = 'sent', last_error = NULL, updated_at = ?
	WHERE id = ?
	`
	if _, err := s.conn.ExecContext(ctx, query, s.now().UnixMilli(), id); err != nil {
		return fmt.Errorf("failed to mark item %d sent: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt: status error, attempt count
// incremented, failure description and attempt time stamped.
func (s *Store) MarkFailed(ctx context.Context, id int64, cause string) error {
	nowMs := s.now().UnixMilli()
	query := `
	UPDATE queue_items
	SET status = 'error', attempts = attempts + 1, last_error = ?, last_attempt_at = ?, updated_at = ?
	WHERE id = ?
	`
	if _, err := s.conn.ExecContext(ctx, query, cause, nowMs, nowMs, id); err != nil {
		return fmt.Errorf("failed to mark item %d failed: %w", id, err)
	}
	return nil
}

// Counts returns the number of pending rows and the number of error rows.
// Frozen items still count as errors so the user sees them.
func (s *Store) Counts(ctx context.Context) (pending, errors int, err error) {
	query := `
	SELECT
		COUNT(*) FILTER (WHERE status = 'pending'),
		COUNT(*) FILTER (WHERE status = 'error')
	FROM queue_items
	`
	if err := s.conn.QueryRowContext(ctx, query).Scan(&pending, &errors); err != nil {
		return 0, 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return pending, errors, nil
}

// PurgeSentOlderThan deletes sent rows whose last update predates the given
// age. Returns the number of rows removed.
func (s *Store) PurgeSentOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age).UnixMilli()
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM queue_items WHERE status = 'sent' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sent items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged items: %w", err)
	}
	return n, nil
}

// ResetErrors transitions every error row back to pending, clearing attempt
// counts, error text, and attempt timestamps. Returns the number of rows
// affected.
func (s *Store) ResetErrors(ctx context.Context) (int64, error) {
	query := `
	UPDATE queue_items
	SET status = 'pending', attempts = 0, last_error = NULL, last_attempt_at = NULL, updated_at = ?
	WHERE status = 'error'
	`
	res, err := s.conn.ExecContext(ctx, query, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to reset error items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset items: %w", err)
	}
	return n, nil
}

// DeleteErrors permanently removes every error row. Returns the number of
// rows removed.
func (s *Store) DeleteErrors(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM queue_items WHERE status = 'error'`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete error items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted items: %w", err)
	}
	return n, nil
}

// Get retrieves a single queue item by id.
// Returns sql.ErrNoRows if the item is not found.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	query := `
	SELECT id, entity_type, entity_id, payload, status, attempts, last_error, last_attempt_at, updated_at
	FROM queue_items
	WHERE id = ?
	`
	row := s.conn.QueryRowContext(ctx, query, id)
	return scanItem(row)
}

// List returns every queue item ordered by last update, oldest first.
// Used by the CLI status view.
func (s *Store) List(ctx context.Context) ([]*Item, error) {
	query := `
	SELECT id, entity_type, entity_id, payload, status, attempts, last_error, last_attempt_at, updated_at
	FROM queue_items
	ORDER BY updated_at ASC
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// SetClock overrides the store's clock. Intended for tests that exercise
// cooldown and retention windows.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var entityType string
	var payload string
	var status string
	var lastError sql.NullString
	var lastAttemptMs sql.NullInt64
	var updatedMs int64

	err := row.Scan(
		&it.ID,
		&entityType,
		&it.EntityID,
		&payload,
		&status,
		&it.Attempts,
		&lastError,
		&lastAttemptMs,
		&updatedMs,
	)
	if err != nil {
		return nil, err
	}

	it.EntityType = EntityType(entityType)
	it.Payload = []byte(payload)
	it.Status = Status(status)
	if lastError.Valid {
		it.LastError = lastError.String
	}
	if lastAttemptMs.Valid {
		t := time.UnixMilli(lastAttemptMs.Int64).UTC()
		it.LastAttemptAt = &t
	}
	it.UpdatedAt = time.UnixMilli(updatedMs).UTC()

	return &it, nil
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}

	return items, nil
}
