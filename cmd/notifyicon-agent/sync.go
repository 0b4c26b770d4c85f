package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
	"codeberg.org/d-buckner/notifyicon/internal/rulesync"
	"codeberg.org/d-buckner/notifyicon/internal/store"
)

// runSync handles the "sync" subcommand
// It fetches the rules once from the configured source and stores them.
//
// Usage:
//
//	notifyicon-agent sync
func runSync(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "Usage: notifyicon-agent sync")
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	b, err := openBackend(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer b.Close()

	fetcher := rulesync.NewFetcher(rulesync.NewHTTPClient(cfg.SyncTimeout), rulesync.Endpoints{
		DefaultHost: cfg.SyncDefaultHost,
		ProxyHost:   cfg.SyncProxyHost,
	}, logger)
	syncer := rulesync.NewSyncer(fetcher, b.blobs, b.settings, b.history, logger)

	result, err := syncer.Sync(context.Background())
	if err != nil {
		if kind, ok := rulesync.KindOf(err); ok {
			fmt.Fprintf(os.Stderr, "Sync failed (%s): %v\n", kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		}
		return 1
	}

	blob, err := b.blobs.Get(context.Background(), store.RulesKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read stored rules: %v\n", err)
		return 1
	}
	fmt.Printf("Sync %s: %d rules stored\n", result, rules.Parse(blob).Len())
	return 0
}
