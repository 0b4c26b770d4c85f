package rulesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
	"codeberg.org/d-buckner/notifyicon/internal/store"
	"golang.org/x/sync/singleflight"
)

// Result is the outcome of a successful sync.
type Result int

const (
	// Unchanged means the remote rules equal the stored rules.
	Unchanged Result = iota
	// Updated means new rules were persisted.
	Updated
)

func (r Result) String() string {
	if r == Updated {
		return "updated"
	}
	return "unchanged"
}

// RuleFetcher downloads the raw rule text for a source.
type RuleFetcher interface {
	Fetch(ctx context.Context, source config.SyncSource, customURL string) (string, error)
}

var _ RuleFetcher = (*Fetcher)(nil)

// Syncer refreshes the stored rule blob from the configured source.
// Concurrent Sync calls share one attempt.
type Syncer struct {
	fetcher  RuleFetcher
	blobs    store.BlobStore
	settings config.Source
	history  store.SyncHistory
	logger   *slog.Logger

	group    singleflight.Group
	writeMu  sync.Mutex
	inFlight atomic.Bool
	now      func() time.Time
}

// NewSyncer creates a syncer. history may be nil.
func NewSyncer(fetcher RuleFetcher, blobs store.BlobStore, settings config.Source, history store.SyncHistory, logger *slog.Logger) *Syncer {
	return &Syncer{
		fetcher:  fetcher,
		blobs:    blobs,
		settings: settings,
		history:  history,
		logger:   logger,
		now:      time.Now,
	}
}

// InFlight reports whether a sync attempt is running.
func (s *Syncer) InFlight() bool {
	return s.inFlight.Load()
}

// Sync fetches, validates and persists rules. A caller joining an attempt
// already in flight gets that attempt's outcome. On any error storage is
// left untouched. The attempt outlives ctx; ctx only bounds the wait.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	ch := s.group.DoChan("sync", func() (any, error) {
		return s.run(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Unchanged, res.Err
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Unchanged, ctx.Err()
	}
}

func (s *Syncer) run(ctx context.Context) (Result, error) {
	s.inFlight.Store(true)
	defer s.inFlight.Store(false)

	settings := s.settings.Settings()
	started := s.now()
	logger := s.logger.With("source", settings.SyncSource.String())
	logger.Info("syncing rules")

	result, err := s.attempt(ctx, settings)
	s.record(ctx, settings.SyncSource, started, result, err)

	if err != nil {
		logger.Warn("rule sync failed", "error", err)
		return Unchanged, err
	}
	logger.Info("rule sync finished", "result", result.String(), "duration", s.now().Sub(started))
	return result, nil
}

func (s *Syncer) attempt(ctx context.Context, settings config.Settings) (Result, error) {
	text, err := s.fetcher.Fetch(ctx, settings.SyncSource, settings.SyncCustomURL)
	if err != nil {
		return Unchanged, err
	}
	if rules.IsChallengePage(text) {
		return Unchanged, &SyncError{Kind: ChallengeDetected}
	}
	if !rules.IsValidJSONArray(text) {
		return Unchanged, &SyncError{Kind: InvalidPayload, Err: errors.New("combined rules are not a JSON array")}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.blobs.Get(ctx, store.RulesKey)
	if err != nil {
		return Unchanged, fmt.Errorf("failed to read stored rules: %w", err)
	}
	if !rules.Differs(stored, text) {
		return Unchanged, nil
	}
	if err := s.blobs.Put(ctx, store.RulesKey, text); err != nil {
		return Unchanged, fmt.Errorf("failed to store rules: %w", err)
	}
	return Updated, nil
}

func (s *Syncer) record(ctx context.Context, source config.SyncSource, started time.Time, result Result, err error) {
	if s.history == nil {
		return
	}

	rec := store.SyncRecord{
		Source:      source.String(),
		Result:      result.String(),
		StartedAt:   started,
		CompletedAt: s.now(),
	}
	if err != nil {
		rec.Result = "failed"
		rec.Error = err.Error()
	}
	if herr := s.history.RecordSync(ctx, rec); herr != nil {
		s.logger.Warn("failed to record sync history", "error", herr)
	}
}
