package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPrefs    = "prefs"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds the process configuration of the agent
type Config struct {
	Port         int    `env:"NOTIFYICON_PORT" envDefault:"3070"`
	DataDir      string `env:"NOTIFYICON_DATA_DIR"`
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	SettingsFile string `env:"SETTINGS_FILE"` // YAML user settings; ignored for the prefs backend
	PrefsFile    string `env:"PREFS_FILE"`    // SharedPreferences-style XML file

	SyncDefaultHost string        `env:"SYNC_DEFAULT_HOST" envDefault:"https://raw.githubusercontent.com/fankes/AndroidNotifyIconAdapt/main"`
	SyncProxyHost   string        `env:"SYNC_PROXY_HOST" envDefault:"https://raw.gitmirror.com/fankes/AndroidNotifyIconAdapt/main"`
	SyncTimeout     time.Duration `env:"SYNC_TIMEOUT" envDefault:"30s"`

	SettleDelay  time.Duration `env:"SETTLE_DELAY" envDefault:"300ms"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1m"`

	PublishRedis bool `env:"PUBLISH_REDIS" envDefault:"false"` // mirror signals to Redis pub/sub

	LogFile      string `env:"LOG_FILE"`
	LogMaxSizeMB int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = getDefaultDataDir()
	}
	if cfg.SettingsFile == "" {
		cfg.SettingsFile = filepath.Join(cfg.DataDir, "settings.yaml")
	}
	if cfg.PrefsFile == "" {
		cfg.PrefsFile = filepath.Join(cfg.DataDir, "notifyicon_prefs.xml")
	}
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)

	switch cfg.StoreBackend {
	case BackendMemory, BackendPrefs, BackendSQLite, BackendRedis:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// SQLitePath is where the sqlite backend keeps its database.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "notifyicon.db")
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// getDefaultDataDir returns the default data directory path
func getDefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/notifyicon"
	}
	return filepath.Join(homeDir, ".local", "share", "notifyicon")
}
