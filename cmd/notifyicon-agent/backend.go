package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/db"
	"codeberg.org/d-buckner/notifyicon/internal/store"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
)

// backend bundles the storage the agent runs on
type backend struct {
	blobs    store.BlobStore
	history  store.SyncHistory // nil when the backend keeps none
	settings config.Source
	redis    *redis.Client // set for the redis backend
	closers  []io.Closer
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	return errors.Join(errs...)
}

// openBackend opens the store selected by STORE_BACKEND
func openBackend(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		mem := store.NewMemoryStore()
		b.blobs, b.history = mem, mem

	case config.BackendPrefs:
		prefs, err := store.NewPrefsStore(cfg.PrefsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open prefs file: %w", err)
		}
		b.blobs, b.settings = prefs, prefs

	case config.BackendSQLite:
		database, err := db.OpenSQLite(cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlStore := store.NewSQLiteStore(database)
		b.blobs, b.history = sqlStore, sqlStore
		b.closers = append(b.closers, database)

	case config.BackendPostgres:
		database, err := db.InitDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		sqlStore := store.NewPostgresStore(database)
		b.blobs, b.history = sqlStore, sqlStore
		b.closers = append(b.closers, database)

	case config.BackendRedis:
		redisStore, err := store.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.blobs, b.history = redisStore, redisStore
		b.redis = redisStore.Client()
		b.closers = append(b.closers, redisStore)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if b.settings == nil {
		fileSource, err := config.NewFileSource(cfg.SettingsFile, logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		b.settings = fileSource
	}

	return b, nil
}

// newLogger builds the JSON logger, teeing to a rotated file when LOG_FILE is set
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	var out io.Writer = os.Stdout
	cleanup := func() {}

	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
		cleanup = func() { rotated.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	return logger, cleanup
}
