package mirror

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mirror.db")
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	store := New(conn)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	return store
}

func TestUpsertDailyLogIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	log := &DailyLog{
		ID:         "L1",
		MachineID:  "TRX-9",
		Date:       "2026-08-01",
		HoursMeter: 1042.5,
		FuelLiters: 80,
		Operator:   "j.doe",
		Synced:     true,
		UpdatedAt:  time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC),
	}

	// Upserting the same record twice leaves exactly one unchanged row.
	for i := 0; i < 2; i++ {
		if err := store.UpsertDailyLog(ctx, log); err != nil {
			t.Fatalf("UpsertDailyLog() #%d error = %v", i+1, err)
		}
	}

	logs, err := store.DailyLogs(ctx)
	if err != nil {
		t.Fatalf("DailyLogs() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("DailyLogs() returned %d rows, want 1", len(logs))
	}
	if !reflect.DeepEqual(logs[0], log) {
		t.Errorf("DailyLogs()[0] = %+v, want %+v", logs[0], log)
	}
}

func TestUpsertDailyLogLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &DailyLog{ID: "L2", MachineID: "TRX-9", Date: "2026-08-02", HoursMeter: 10,
		UpdatedAt: time.Date(2026, 8, 2, 8, 0, 0, 0, time.UTC)}
	if err := store.UpsertDailyLog(ctx, first); err != nil {
		t.Fatalf("UpsertDailyLog() error = %v", err)
	}

	second := &DailyLog{ID: "L2", MachineID: "TRX-9", Date: "2026-08-02", HoursMeter: 12,
		Synced: true, UpdatedAt: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)}
	if err := store.UpsertDailyLog(ctx, second); err != nil {
		t.Fatalf("UpsertDailyLog() error = %v", err)
	}

	got, err := store.GetDailyLog(ctx, "L2")
	if err != nil {
		t.Fatalf("GetDailyLog() error = %v", err)
	}
	if got.HoursMeter != 12 {
		t.Errorf("hm = %v, want 12 (last write wins)", got.HoursMeter)
	}
	if !got.Synced {
		t.Errorf("synced = false, want true")
	}
}

func TestDailyLogsIncludeUnsynced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	synced := &DailyLog{ID: "A", MachineID: "M", Date: "2026-08-01", Synced: true}
	unsynced := &DailyLog{ID: "B", MachineID: "M", Date: "2026-08-02", Synced: false}
	for _, l := range []*DailyLog{synced, unsynced} {
		if err := store.UpsertDailyLog(ctx, l); err != nil {
			t.Fatalf("UpsertDailyLog(%s) error = %v", l.ID, err)
		}
	}

	logs, err := store.DailyLogs(ctx)
	if err != nil {
		t.Fatalf("DailyLogs() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("DailyLogs() returned %d rows, want both synced and unsynced", len(logs))
	}
	// Newest operation day first.
	if logs[0].ID != "B" || logs[1].ID != "A" {
		t.Errorf("order = [%s %s], want [B A]", logs[0].ID, logs[1].ID)
	}
}

func TestUpsertMaintenanceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &MaintenanceRecord{
		ID:         "MR-1",
		MachineID:  "TRX-9",
		Date:       "2026-07-15",
		Kind:       "oil_change",
		HoursMeter: 1000,
		Cost:       129.90,
		Parts:      []string{"filter-a12", "oil-15w40"},
		Notes:      "routine service",
		UpdatedAt:  time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC),
	}

	if err := store.UpsertMaintenance(ctx, rec); err != nil {
		t.Fatalf("UpsertMaintenance() error = %v", err)
	}

	recs, err := store.MaintenanceRecords(ctx)
	if err != nil {
		t.Fatalf("MaintenanceRecords() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("MaintenanceRecords() returned %d rows, want 1", len(recs))
	}
	if !reflect.DeepEqual(recs[0], rec) {
		t.Errorf("MaintenanceRecords()[0] = %+v, want %+v", recs[0], rec)
	}
}

func TestUpsertMachine(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &Machine{
		ID:           "TRX-9",
		Name:         "Tractor 9",
		Model:        "TRX 9000",
		SerialNumber: "SN-0042",
		HoursMeter:   1042.5,
		Status:       "active",
		Synced:       true,
		UpdatedAt:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := store.UpsertMachine(ctx, m); err != nil {
		t.Fatalf("UpsertMachine() error = %v", err)
	}

	machines, err := store.Machines(ctx)
	if err != nil {
		t.Fatalf("Machines() error = %v", err)
	}
	if len(machines) != 1 {
		t.Fatalf("Machines() returned %d rows, want 1", len(machines))
	}
	if !reflect.DeepEqual(machines[0], m) {
		t.Errorf("Machines()[0] = %+v, want %+v", machines[0], m)
	}
}

func TestUpsertRejectsMissingID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertDailyLog(ctx, &DailyLog{MachineID: "M", Date: "2026-08-01"}); err == nil {
		t.Errorf("UpsertDailyLog() without id = nil error, want error")
	}
	if err := store.UpsertMaintenance(ctx, &MaintenanceRecord{MachineID: "M"}); err == nil {
		t.Errorf("UpsertMaintenance() without id = nil error, want error")
	}
	if err := store.UpsertMachine(ctx, &Machine{Name: "X"}); err == nil {
		t.Errorf("UpsertMachine() without id = nil error, want error")
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     interface{ Validate() error }
		wantErr bool
	}{
		{"valid daily log", &DailyLog{ID: "L1", MachineID: "M1", Date: "2026-08-01", HoursMeter: 10}, false},
		{"daily log missing machine", &DailyLog{ID: "L1", Date: "2026-08-01"}, true},
		{"daily log bad date", &DailyLog{ID: "L1", MachineID: "M1", Date: "01.08.2026"}, true},
		{"daily log negative hm", &DailyLog{ID: "L1", MachineID: "M1", Date: "2026-08-01", HoursMeter: -1}, true},
		{"valid maintenance", &MaintenanceRecord{ID: "R1", MachineID: "M1", Date: "2026-08-01", Kind: "repair"}, false},
		{"maintenance missing kind", &MaintenanceRecord{ID: "R1", MachineID: "M1", Date: "2026-08-01"}, true},
		{"valid machine", &Machine{ID: "M1", Name: "Combine 3"}, false},
		{"machine missing name", &Machine{ID: "M1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
