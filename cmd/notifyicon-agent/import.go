package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
	"codeberg.org/d-buckner/notifyicon/internal/store"
)

// runImport handles the "import" subcommand
// It validates a local rules document and replaces the stored rules with it.
// A running agent picks the change up on its next rules-changed event.
//
// Usage:
//
//	notifyicon-agent import <rules.json>
func runImport(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: notifyicon-agent import <rules.json>")
		return 1
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read %s: %v\n", args[0], err)
		return 1
	}
	doc := string(data)

	if rules.IsChallengePage(doc) || !rules.IsValidJSONArray(doc) {
		fmt.Fprintf(os.Stderr, "Error: %s is not a JSON array of rules\n", args[0])
		return 1
	}
	set, report := rules.ParseWithReport(doc)
	if report.Malformed {
		fmt.Fprintf(os.Stderr, "Error: %s is malformed: %v\n", args[0], report.Err)
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

	if err := b.blobs.Put(context.Background(), store.RulesKey, doc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to store rules: %v\n", err)
		return 1
	}

	fmt.Printf("Imported %d rules (%d dropped)\n", set.Len(), report.Dropped)
	return 0
}
