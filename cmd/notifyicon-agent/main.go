package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/api"
	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/engine"
	"codeberg.org/d-buckner/notifyicon/internal/notify"
	"codeberg.org/d-buckner/notifyicon/internal/render"
	"codeberg.org/d-buckner/notifyicon/internal/resolver"
	"codeberg.org/d-buckner/notifyicon/internal/rulesync"
	"codeberg.org/d-buckner/notifyicon/internal/system"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Check for subcommands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "sync":
			os.Exit(runSync(os.Args[2:]))
		case "import":
			os.Exit(runImport(os.Args[2:]))
		}
	}

	// Default: run the server
	os.Exit(runServer())
}

func runServer() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Setup structured logging
	logger, closeLog := newLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting notify icon agent")
	logger.Info("loaded configuration",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"store_backend", cfg.StoreBackend,
		"sync_timeout", cfg.SyncTimeout,
		"publish_redis", cfg.PublishRedis,
	)

	b, err := openBackend(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer b.Close()
	logger.Info("store initialized successfully", "backend", cfg.StoreBackend)

	assets, err := resolver.LoadAssets()
	if err != nil {
		logger.Error("failed to load icon assets", "error", err)
		return 1
	}

	fetcher := rulesync.NewFetcher(rulesync.NewHTTPClient(cfg.SyncTimeout), rulesync.Endpoints{
		DefaultHost: cfg.SyncDefaultHost,
		ProxyHost:   cfg.SyncProxyHost,
	}, logger)
	syncer := rulesync.NewSyncer(fetcher, b.blobs, b.settings, b.history, logger)

	// Signals go to SSE clients, and to Redis pub/sub when enabled
	hub := notify.NewHub()
	var notifier notify.Notifier = hub
	var applierPub notify.Publisher = hub
	if cfg.PublishRedis {
		client := b.redis
		if client == nil {
			client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer client.Close()
		}
		redisPub := notify.NewRedisPublisher(client, notify.DefaultChannel, logger)
		notifier = notify.Multi{hub, redisPub}
		applierPub = fanout{hub, redisPub}
	}

	views := render.NewRegistry()
	refresher := render.NewRefresher(views, render.NewSignalApplier(applierPub), nil, logger)

	eng := engine.New(engine.Options{
		Blobs:    b.blobs,
		Settings: b.settings,
		Syncer:   syncer,
		UI:       refresher,
		Notifier: notifier,
		Resolver: resolver.New(assets),
		Config: engine.Config{
			SettleDelay:  cfg.SettleDelay,
			TickInterval: cfg.TickInterval,
		},
		Logger: logger,
	})
	refresher.SetResolver(eng.Resolve)

	monitor := system.NewMonitor(cfg.DataDir, 0, logger)

	server := api.NewServer(api.ServerConfig{
		Engine:    eng,
		Blobs:     b.blobs,
		History:   b.history,
		Hub:       hub,
		Views:     views,
		Refresher: refresher,
		Monitor:   monitor,
		Port:      cfg.Port,
	}, logger)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	refresher.Start(ctx)
	monitor.Start(ctx)

	// SIGHUP reloads settings
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("reloading settings")
				if err := eng.Submit(engine.SettingsChanged()); err != nil {
					logger.Warn("failed to queue settings reload", "error", err)
				}
			}
		}
	}()

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for shutdown signal
	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		exitCode = 1
	}
	refresher.Stop()
	eng.Stop()

	logger.Info("agent stopped gracefully")
	return exitCode
}

// fanout publishes each signal to several publishers
type fanout []notify.Publisher

func (f fanout) Publish(ctx context.Context, sig notify.Signal) {
	for _, p := range f {
		p.Publish(ctx, sig)
	}
}
