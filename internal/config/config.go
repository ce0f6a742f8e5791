// Package config loads fieldsync configuration from a YAML file and
// FIELDSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

type DBConfig struct {
	// Path is the SQLite file holding the queue and the entity mirror.
	Path string `mapstructure:"path"`
}

type SyncConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	BatchLimit  int           `mapstructure:"batch_limit"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Retention   time.Duration `mapstructure:"retention"`
}

type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	HealthURL string        `mapstructure:"health_url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// ProbeInterval is how often the connectivity monitor checks the
	// health endpoint.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type InboxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LogConfig struct {
	// File rotates daemon logs when set; empty logs to stderr only.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from the given file path, layered under
// FIELDSYNC_* environment variables. A missing file is not an error; the
// defaults and environment carry a fresh install.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".fieldsync")

	v.SetDefault("db.path", filepath.Join(root, "fieldsync.db"))

	v.SetDefault("sync.interval", "30s")
	v.SetDefault("sync.cooldown", "30s")
	v.SetDefault("sync.batch_limit", 50)
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.retention", "168h")

	v.SetDefault("remote.base_url", "http://localhost:8080/api/v1")
	v.SetDefault("remote.health_url", "http://localhost:8080/healthz")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.probe_interval", "10s")

	v.SetDefault("inbox.enabled", false)
	v.SetDefault("inbox.dir", filepath.Join(root, "inbox"))

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8710)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)
}
