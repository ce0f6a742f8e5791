package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("Sync.Interval = %v, want 30s", cfg.Sync.Interval)
	}
	if cfg.Sync.BatchLimit != 50 {
		t.Errorf("Sync.BatchLimit = %d, want 50", cfg.Sync.BatchLimit)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("Sync.MaxAttempts = %d, want 5", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.Retention != 7*24*time.Hour {
		t.Errorf("Sync.Retention = %v, want 168h", cfg.Sync.Retention)
	}
	if cfg.DB.Path == "" {
		t.Error("DB.Path is empty")
	}
	if cfg.Dashboard.Port != 8710 {
		t.Errorf("Dashboard.Port = %d, want 8710", cfg.Dashboard.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	content := `
db:
  path: /tmp/test.db
sync:
  interval: 5s
  batch_limit: 10
remote:
  base_url: https://farm.example.com/api/v1
inbox:
  enabled: true
  dir: /tmp/inbox
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.Path != "/tmp/test.db" {
		t.Errorf("DB.Path = %q, want /tmp/test.db", cfg.DB.Path)
	}
	if cfg.Sync.Interval != 5*time.Second {
		t.Errorf("Sync.Interval = %v, want 5s", cfg.Sync.Interval)
	}
	if cfg.Sync.BatchLimit != 10 {
		t.Errorf("Sync.BatchLimit = %d, want 10", cfg.Sync.BatchLimit)
	}
	if cfg.Remote.BaseURL != "https://farm.example.com/api/v1" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if !cfg.Inbox.Enabled {
		t.Error("Inbox.Enabled = false, want true")
	}

	// Unset keys keep defaults.
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("Sync.MaxAttempts = %d, want default 5", cfg.Sync.MaxAttempts)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Cooldown != 30*time.Second {
		t.Errorf("Sync.Cooldown = %v, want 30s", cfg.Sync.Cooldown)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FIELDSYNC_DB_PATH", "/tmp/env.db")
	t.Setenv("FIELDSYNC_SYNC_BATCH_LIMIT", "25")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.Path != "/tmp/env.db" {
		t.Errorf("DB.Path = %q, want /tmp/env.db", cfg.DB.Path)
	}
	if cfg.Sync.BatchLimit != 25 {
		t.Errorf("Sync.BatchLimit = %d, want 25", cfg.Sync.BatchLimit)
	}
}
