package engine

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/resolver"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
	"codeberg.org/d-buckner/notifyicon/internal/rulesync"
	"codeberg.org/d-buckner/notifyicon/internal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRecomputer struct {
	mock.Mock
}

func (m *mockRecomputer) RecomputeStatusBar(ctx context.Context) {
	m.Called()
}

func (m *mockRecomputer) RecomputeNotificationPanel(ctx context.Context) {
	m.Called()
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) RulesChanged(ctx context.Context) {
	m.Called()
}

func (m *mockNotifier) PromptUnsupported(ctx context.Context, pkg string) {
	m.Called(pkg)
}

func (m *mockNotifier) WithdrawPrompt(ctx context.Context, pkg string) {
	m.Called(pkg)
}

func (m *mockNotifier) SyncCompleted(ctx context.Context, result rulesync.Result, err error) {
	m.Called(result, err)
}

// fakeSyncer writes blob to the store when synced and counts calls.
type fakeSyncer struct {
	blobs    store.BlobStore
	blob     string
	err      error
	calls    atomic.Int32
	inFlight atomic.Bool
	gate     chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context) (rulesync.Result, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return rulesync.Unchanged, f.err
	}
	if err := f.blobs.Put(ctx, store.RulesKey, f.blob); err != nil {
		return rulesync.Unchanged, err
	}
	return rulesync.Updated, nil
}

func (f *fakeSyncer) InFlight() bool {
	return f.inFlight.Load()
}

// flakyStore fails reads while broken is set.
type flakyStore struct {
	*store.MemoryStore
	broken atomic.Bool
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if s.broken.Load() {
		return "", errors.New("storage unavailable")
	}
	return s.MemoryStore.Get(ctx, key)
}

// countingSource counts Reload calls.
type countingSource struct {
	*config.StaticSource
	reloads atomic.Int32
}

func (c *countingSource) Reload() error {
	c.reloads.Add(1)
	return nil
}

type harness struct {
	engine   *Engine
	blobs    *flakyStore
	settings *countingSource
	syncer   *fakeSyncer
	ui       *mockRecomputer
	notifier *mockNotifier
	clock    *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, settings config.Settings) *harness {
	t.Helper()

	assets, err := resolver.LoadAssets()
	require.NoError(t, err)

	blobs := &flakyStore{MemoryStore: store.NewMemoryStore()}
	h := &harness{
		blobs:    blobs,
		settings: &countingSource{StaticSource: config.NewStaticSource(settings)},
		syncer:   &fakeSyncer{blobs: blobs},
		ui:       &mockRecomputer{},
		notifier: &mockNotifier{},
		clock:    &testClock{now: time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)},
	}
	h.engine = New(Options{
		Blobs:    blobs,
		Settings: h.settings,
		Syncer:   h.syncer,
		UI:       h.ui,
		Notifier: h.notifier,
		Resolver: resolver.New(assets),
		Config:   Config{SettleDelay: 5 * time.Millisecond},
		Logger:   testLogger(),
		Now:      h.clock.Now,
	})
	t.Cleanup(h.engine.Stop)
	return h
}

func ruleBlob(t *testing.T, pkgs ...string) string {
	t.Helper()
	entries := make([]rules.Entry, 0, len(pkgs))
	for _, pkg := range pkgs {
		entries = append(entries, rules.Entry{
			PackageName: pkg,
			IsEnabled:   true,
			Icon:        image.NewNRGBA(image.Rect(0, 0, 2, 2)),
		})
	}
	blob, err := rules.Serialize(rules.NewRuleSet(entries))
	require.NoError(t, err)
	return blob
}
