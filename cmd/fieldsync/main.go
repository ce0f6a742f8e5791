// fieldsync is the offline-first sync agent for field data capture.
//
// It keeps captured machine data (daily operation logs, maintenance
// records, machine master data) in a local SQLite queue and mirror, and
// delivers queued edits to the farm management backend whenever
// connectivity allows.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/agritrack/fieldsync/internal/config"
	"github.com/agritrack/fieldsync/internal/mirror"
	"github.com/agritrack/fieldsync/internal/queue"
	"github.com/agritrack/fieldsync/internal/remote"
	syncpkg "github.com/agritrack/fieldsync/internal/sync"
)

var (
	cfgFile string
	dbPath  string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first sync agent for field data capture",
	Long: `fieldsync queues field data captured on machines (daily logs,
maintenance records, machine master data) in a local SQLite database and
delivers it to the farm management backend whenever connectivity allows.

Captured edits are durable across restarts, deduplicated per entity, and
retried with a cooldown until they succeed or freeze for manual review.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DB.Path = dbPath
		}
		setupLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: built-in defaults + FIELDSYNC_* env)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the sync database (overrides config)")
}

// setupLogging routes the standard logger through a rotating file when one
// is configured, keeping stderr output for interactive use.
func setupLogging() {
	if cfg.Log.File == "" {
		return
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}

// openStores opens the sync database and initializes both schemas.
func openStores(cmd *cobra.Command) (*queue.Store, *mirror.Store, error) {
	store, err := queue.Open(cfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sync database: %w", err)
	}

	ctx := cmd.Context()
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	if cfg.Sync.MaxAttempts > 0 {
		store.MaxAttempts = cfg.Sync.MaxAttempts
	}

	mirrorStore := mirror.New(store.RawDB())
	if err := mirrorStore.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	return store, mirrorStore, nil
}

// buildOrchestrator assembles the sync orchestrator from the loaded config.
func buildOrchestrator(store *queue.Store, mirrorStore *mirror.Store) *syncpkg.Orchestrator {
	client := remote.NewHTTPClient(cfg.Remote.BaseURL,
		remote.WithToken(cfg.Remote.Token),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}))

	return syncpkg.New(store, mirrorStore, client, &syncpkg.Config{
		Cooldown:   cfg.Sync.Cooldown,
		BatchLimit: cfg.Sync.BatchLimit,
		Retention:  cfg.Sync.Retention,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
