package inbox

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agritrack/fieldsync/internal/mirror"
	"github.com/agritrack/fieldsync/internal/queue"
)

func newTestWatcher(t *testing.T) (*Watcher, *queue.Store, *mirror.Store, string) {
	t.Helper()

	ctx := context.Background()
	root := t.TempDir()

	store, err := queue.Open(filepath.Join(root, "queue.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	mirrorStore := mirror.New(store.RawDB())
	if err := mirrorStore.InitSchema(ctx); err != nil {
		t.Fatalf("mirror InitSchema() error = %v", err)
	}

	dir := filepath.Join(root, "inbox")
	cfg := DefaultConfig()
	cfg.DebounceInterval = 10 * time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)

	w, err := New(store, mirrorStore, dir, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return w, store, mirrorStore, dir
}

func writeEnvelope(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestProcessFileEnqueuesAndMirrors(t *testing.T) {
	ctx := context.Background()
	w, store, mirrorStore, dir := newTestWatcher(t)

	path := writeEnvelope(t, dir, "log1.json",
		`{"entity_type":"daily_log","entity_id":"L1","payload":{"id":"L1","machine_id":"M1","date":"2026-08-28","hm":12.5}}`)

	if err := w.ProcessFile(ctx, path); err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}

	pending, _, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if pending != 1 {
		t.Errorf("pending = %d, want 1", pending)
	}

	got, err := mirrorStore.GetDailyLog(ctx, "L1")
	if err != nil {
		t.Fatalf("GetDailyLog() error = %v", err)
	}
	if got.Synced {
		t.Errorf("mirror row synced = true, want false before delivery")
	}
	if got.HoursMeter != 12.5 {
		t.Errorf("hours meter = %v, want 12.5", got.HoursMeter)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("envelope file still exists after ingestion")
	}
}

func TestProcessFileRejectsMalformedEnvelope(t *testing.T) {
	ctx := context.Background()
	w, store, _, dir := newTestWatcher(t)

	path := writeEnvelope(t, dir, "bad.json", `{not json`)

	if err := w.ProcessFile(ctx, path); err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}

	pending, _, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if pending != 0 {
		t.Errorf("pending = %d, want 0 for rejected envelope", pending)
	}

	if _, err := os.Stat(path + ".rejected"); err != nil {
		t.Errorf("rejected envelope not set aside: %v", err)
	}
}

func TestProcessFileMissingFieldsRejected(t *testing.T) {
	ctx := context.Background()
	w, store, _, dir := newTestWatcher(t)

	path := writeEnvelope(t, dir, "empty.json", `{"entity_id":"L1"}`)

	if err := w.ProcessFile(ctx, path); err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}

	pending, _, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if pending != 0 {
		t.Errorf("pending = %d, want 0", pending)
	}
}

func TestScanOnceIngestsExistingEnvelopes(t *testing.T) {
	ctx := context.Background()
	w, store, _, dir := newTestWatcher(t)

	writeEnvelope(t, dir, "a.json",
		`{"entity_type":"machine","entity_id":"M1","payload":{"id":"M1","name":"Tractor 9"}}`)
	writeEnvelope(t, dir, "b.json",
		`{"entity_type":"maintenance","entity_id":"R1","payload":{"id":"R1","machine_id":"M1","date":"2026-08-20","kind":"oil_change"}}`)
	writeEnvelope(t, dir, "notes.txt", `ignored`)

	if err := w.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce() error = %v", err)
	}

	pending, _, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if pending != 2 {
		t.Errorf("pending = %d, want 2", pending)
	}
}

func TestScanOnceDedupsSameEntity(t *testing.T) {
	ctx := context.Background()
	w, store, _, dir := newTestWatcher(t)

	writeEnvelope(t, dir, "a.json",
		`{"entity_type":"daily_log","entity_id":"L1","payload":{"id":"L1","hm":1}}`)
	writeEnvelope(t, dir, "b.json",
		`{"entity_type":"daily_log","entity_id":"L1","payload":{"id":"L1","hm":2}}`)

	if err := w.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce() error = %v", err)
	}

	pending, _, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if pending != 1 {
		t.Errorf("pending = %d, want 1 (edits to one entity collapse)", pending)
	}
}

func TestWatcherPicksUpNewEnvelope(t *testing.T) {
	ctx := context.Background()
	w, store, _, dir := newTestWatcher(t)

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	writeEnvelope(t, dir, "late.json",
		`{"entity_type":"daily_log","entity_id":"L9","payload":{"id":"L9","hm":3}}`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pending, _, err := store.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts() error = %v", err)
		}
		if pending == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for watcher to ingest envelope")
}
