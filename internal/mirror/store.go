package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store reads and writes the mirror tables. It shares the sync database
// connection, so mirror rows and queue rows live in one file.
type Store struct {
	conn *sql.DB
}

// New wraps an open database connection. Call InitSchema before use.
func New(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// InitSchema creates the mirror tables if they don't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_logs (
		id TEXT PRIMARY KEY,
		machine_id TEXT NOT NULL,
		date TEXT NOT NULL,
		hours_meter REAL NOT NULL DEFAULT 0,
		fuel_liters REAL NOT NULL DEFAULT 0,
		area_hectares REAL NOT NULL DEFAULT 0,
		operator TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		synced INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS maintenance_records (
		id TEXT PRIMARY KEY,
		machine_id TEXT NOT NULL,
		date TEXT NOT NULL,
		kind TEXT NOT NULL,
		hours_meter REAL NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		parts TEXT,  -- JSON array
		notes TEXT NOT NULL DEFAULT '',
		synced INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS machines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		serial_number TEXT NOT NULL DEFAULT '',
		hours_meter REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT '',
		synced INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_daily_logs_machine ON daily_logs(machine_id, date);
	CREATE INDEX IF NOT EXISTS idx_maintenance_machine ON maintenance_records(machine_id, date);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize mirror schema: %w", err)
	}

	return nil
}

// UpsertDailyLog inserts or replaces a daily log by id. Last write wins.
func (s *Store) UpsertDailyLog(ctx context.Context, l *DailyLog) error {
	if l.ID == "" {
		return fmt.Errorf("cannot upsert daily log without id")
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO daily_logs (id, machine_id, date, hours_meter, fuel_liters, area_hectares, operator, notes, synced, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		machine_id = excluded.machine_id,
		date = excluded.date,
		hours_meter = excluded.hours_meter,
		fuel_liters = excluded.fuel_liters,
		area_hectares = excluded.area_hectares,
		operator = excluded.operator,
		notes = excluded.notes,
		synced = excluded.synced,
		updated_at = excluded.updated_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		l.ID,
		l.MachineID,
		l.Date,
		l.HoursMeter,
		l.FuelLiters,
		l.AreaHectares,
		l.Operator,
		l.Notes,
		boolToInt(l.Synced),
		l.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily log %s: %w", l.ID, err)
	}

	return nil
}

// DailyLogs returns every mirrored daily log, newest operation day first.
// Both synced and not-yet-synced rows are returned so offline reads see
// local edits immediately.
func (s *Store) DailyLogs(ctx context.Context) ([]*DailyLog, error) {
	query := `
	SELECT id, machine_id, date, hours_meter, fuel_liters, area_hectares, operator, notes, synced, updated_at
	FROM daily_logs
	ORDER BY date DESC, id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily logs: %w", err)
	}
	defer rows.Close()

	var logs []*DailyLog
	for rows.Next() {
		var l DailyLog
		var synced int
		var updatedAt string

		err := rows.Scan(&l.ID, &l.MachineID, &l.Date, &l.HoursMeter, &l.FuelLiters,
			&l.AreaHectares, &l.Operator, &l.Notes, &synced, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily log: %w", err)
		}

		l.Synced = synced != 0
		l.UpdatedAt = parseTimestamp(updatedAt)
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily logs: %w", err)
	}

	return logs, nil
}

// GetDailyLog retrieves a single daily log by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetDailyLog(ctx context.Context, id string) (*DailyLog, error) {
	query := `
	SELECT id, machine_id, date, hours_meter, fuel_liters, area_hectares, operator, notes, synced, updated_at
	FROM daily_logs
	WHERE id = ?
	`

	var l DailyLog
	var synced int
	var updatedAt string

	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.MachineID, &l.Date, &l.HoursMeter, &l.FuelLiters,
		&l.AreaHectares, &l.Operator, &l.Notes, &synced, &updatedAt)
	if err != nil {
		return nil, err
	}

	l.Synced = synced != 0
	l.UpdatedAt = parseTimestamp(updatedAt)
	return &l, nil
}

// UpsertMaintenance inserts or replaces a maintenance record by id.
// Last write wins. Parts are stored as a JSON array string.
func (s *Store) UpsertMaintenance(ctx context.Context, r *MaintenanceRecord) error {
	if r.ID == "" {
		return fmt.Errorf("cannot upsert maintenance record without id")
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	partsJSON, err := json.Marshal(r.Parts)
	if err != nil {
		return fmt.Errorf("failed to marshal parts: %w", err)
	}

	query := `
	INSERT INTO maintenance_records (id, machine_id, date, kind, hours_meter, cost, parts, notes, synced, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		machine_id = excluded.machine_id,
		date = excluded.date,
		kind = excluded.kind,
		hours_meter = excluded.hours_meter,
		cost = excluded.cost,
		parts = excluded.parts,
		notes = excluded.notes,
		synced = excluded.synced,
		updated_at = excluded.updated_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		r.ID,
		r.MachineID,
		r.Date,
		r.Kind,
		r.HoursMeter,
		r.Cost,
		string(partsJSON),
		r.Notes,
		boolToInt(r.Synced),
		r.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert maintenance record %s: %w", r.ID, err)
	}

	return nil
}

// MaintenanceRecords returns every mirrored maintenance record, newest
// service day first.
func (s *Store) MaintenanceRecords(ctx context.Context) ([]*MaintenanceRecord, error) {
	query := `
	SELECT id, machine_id, date, kind, hours_meter, cost, parts, notes, synced, updated_at
	FROM maintenance_records
	ORDER BY date DESC, id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance records: %w", err)
	}
	defer rows.Close()

	var recs []*MaintenanceRecord
	for rows.Next() {
		var r MaintenanceRecord
		var synced int
		var partsJSON sql.NullString
		var updatedAt string

		err := rows.Scan(&r.ID, &r.MachineID, &r.Date, &r.Kind, &r.HoursMeter,
			&r.Cost, &partsJSON, &r.Notes, &synced, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan maintenance record: %w", err)
		}

		if partsJSON.Valid && partsJSON.String != "" && partsJSON.String != "null" {
			if err := json.Unmarshal([]byte(partsJSON.String), &r.Parts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal parts: %w", err)
			}
		}

		r.Synced = synced != 0
		r.UpdatedAt = parseTimestamp(updatedAt)
		recs = append(recs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating maintenance records: %w", err)
	}

	return recs, nil
}

// UpsertMachine inserts or replaces a machine record by id. Last write wins.
func (s *Store) UpsertMachine(ctx context.Context, m *Machine) error {
	if m.ID == "" {
		return fmt.Errorf("cannot upsert machine without id")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO machines (id, name, model, serial_number, hours_meter, status, synced, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		model = excluded.model,
		serial_number = excluded.serial_number,
		hours_meter = excluded.hours_meter,
		status = excluded.status,
		synced = excluded.synced,
		updated_at = excluded.updated_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		m.ID,
		m.Name,
		m.Model,
		m.SerialNumber,
		m.HoursMeter,
		m.Status,
		boolToInt(m.Synced),
		m.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert machine %s: %w", m.ID, err)
	}

	return nil
}

// Machines returns every mirrored machine ordered by name.
func (s *Store) Machines(ctx context.Context) ([]*Machine, error) {
	query := `
	SELECT id, name, model, serial_number, hours_meter, status, synced, updated_at
	FROM machines
	ORDER BY name ASC, id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	var machines []*Machine
	for rows.Next() {
		var m Machine
		var synced int
		var updatedAt string

		err := rows.Scan(&m.ID, &m.Name, &m.Model, &m.SerialNumber,
			&m.HoursMeter, &m.Status, &synced, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}

		m.Synced = synced != 0
		m.UpdatedAt = parseTimestamp(updatedAt)
		machines = append(machines, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating machines: %w", err)
	}

	return machines, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
