package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/resolver"
	"codeberg.org/d-buckner/notifyicon/internal/rulesync"
	"codeberg.org/d-buckner/notifyicon/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStart_LoadsInitialSnapshot(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	require.NoError(t, h.blobs.Put(ctx, store.RulesKey, ruleBlob(t, "com.foo", "com.bar")))

	h.engine.Start(ctx)

	assert.Equal(t, 2, h.engine.Rules().Len())
	assert.False(t, h.engine.UsingCache())
	assert.Equal(t, resolver.SourceCustom, h.engine.Resolve(resolver.Input{PackageName: "com.foo"}).Source)
}

func TestRulesChanged_SwapsAndRecomputes(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	h.engine.Start(ctx)
	assert.Equal(t, 0, h.engine.Rules().Len())

	h.ui.On("RecomputeStatusBar").Once()
	h.ui.On("RecomputeNotificationPanel").Once()
	h.notifier.On("RulesChanged").Once()

	require.NoError(t, h.blobs.Put(ctx, store.RulesKey, ruleBlob(t, "com.foo")))
	require.NoError(t, h.engine.SubmitWait(ctx, RulesChanged()))

	assert.True(t, h.engine.Rules().Contains("com.foo"))
	assert.True(t, h.engine.UsingCache())
	h.ui.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func TestRulesChanged_StoreFailureKeepsSnapshot(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	require.NoError(t, h.blobs.Put(ctx, store.RulesKey, ruleBlob(t, "com.foo")))
	h.engine.Start(ctx)

	h.ui.On("RecomputeStatusBar")
	h.ui.On("RecomputeNotificationPanel")
	h.notifier.On("RulesChanged")

	h.blobs.broken.Store(true)
	require.NoError(t, h.engine.SubmitWait(ctx, RulesChanged()))
	assert.True(t, h.engine.Rules().Contains("com.foo"))

	h.blobs.broken.Store(false)
	require.NoError(t, h.blobs.Put(ctx, store.RulesKey, "this is not json"))
	require.NoError(t, h.engine.SubmitWait(ctx, RulesChanged()))
	assert.True(t, h.engine.Rules().Contains("com.foo"))

	require.NoError(t, h.blobs.Put(ctx, store.RulesKey, ""))
	require.NoError(t, h.engine.SubmitWait(ctx, RulesChanged()))
	assert.Equal(t, 0, h.engine.Rules().Len())
}

func TestCacheRefresh_DoesNotRecompute(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	h.engine.Start(ctx)
	h.ui.On("RecomputeStatusBar")
	h.ui.On("RecomputeNotificationPanel")

	require.NoError(t, h.blobs.Put(ctx, store.RulesKey, ruleBlob(t, "com.foo")))
	require.NoError(t, h.engine.SubmitWait(ctx, CacheRefresh()))

	assert.True(t, h.engine.Rules().Contains("com.foo"))
	assert.True(t, h.engine.UsingCache())
	h.ui.AssertNotCalled(t, "RecomputeStatusBar")
	h.ui.AssertNotCalled(t, "RecomputeNotificationPanel")
}

func TestSettingsChanged_ReloadsSettings(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	h.engine.Start(ctx)

	require.NoError(t, h.engine.SubmitWait(ctx, SettingsChanged()))
	assert.Equal(t, int32(1), h.settings.reloads.Load())
}

func TestAppInstalled(t *testing.T) {
	tests := []struct {
		name      string
		pkg       string
		replacing bool
		mutate    func(*config.Settings)
		prompt    bool
	}{
		{name: "unknown package prompts", pkg: "com.new", prompt: true},
		{name: "known package is silent", pkg: "com.foo"},
		{name: "replacing install is silent", pkg: "com.new", replacing: true},
		{name: "excluded package is silent", pkg: "com.android.settings"},
		{name: "icon fix disabled", pkg: "com.new", mutate: func(s *config.Settings) { s.IconFixEnabled = false }},
		{name: "fix notify disabled", pkg: "com.new", mutate: func(s *config.Settings) { s.FixNotifyEnabled = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := config.DefaultSettings()
			if tt.mutate != nil {
				tt.mutate(&settings)
			}
			h := newHarness(t, settings)
			ctx := context.Background()
			require.NoError(t, h.blobs.Put(ctx, store.RulesKey, ruleBlob(t, "com.foo")))
			h.engine.Start(ctx)

			h.notifier.On("PromptUnsupported", mock.Anything)

			require.NoError(t, h.engine.SubmitWait(ctx, AppInstalled(tt.pkg, tt.replacing)))

			if tt.prompt {
				h.notifier.AssertCalled(t, "PromptUnsupported", tt.pkg)
				h.notifier.AssertNumberOfCalls(t, "PromptUnsupported", 1)
			} else {
				h.notifier.AssertNotCalled(t, "PromptUnsupported", mock.Anything)
			}
		})
	}
}

func TestAppRemoved_AlwaysWithdraws(t *testing.T) {
	settings := config.DefaultSettings()
	settings.IconFixEnabled = false
	h := newHarness(t, settings)
	ctx := context.Background()
	h.engine.Start(ctx)

	h.notifier.On("WithdrawPrompt", "com.gone").Once()
	require.NoError(t, h.engine.SubmitWait(ctx, AppRemoved("com.gone")))
	h.notifier.AssertExpectations(t)
}

func TestScreenUnlocked(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	h.engine.Start(ctx)
	h.ui.On("RecomputeStatusBar")
	h.ui.On("RecomputeNotificationPanel")

	require.NoError(t, h.engine.SubmitWait(ctx, ScreenUnlocked()))
	h.ui.AssertNotCalled(t, "RecomputeStatusBar")

	require.NoError(t, h.engine.SubmitWait(ctx, CacheRefresh()))
	require.NoError(t, h.engine.SubmitWait(ctx, ScreenUnlocked()))
	h.ui.AssertNumberOfCalls(t, "RecomputeStatusBar", 1)
	h.ui.AssertNotCalled(t, "RecomputeNotificationPanel")
}

func TestTick_DailySync(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	h.syncer.blob = ruleBlob(t, "com.synced")
	h.engine.Start(ctx)

	h.notifier.On("SyncCompleted", rulesync.Updated, nil)
	h.notifier.On("RulesChanged")
	h.ui.On("RecomputeStatusBar")
	h.ui.On("RecomputeNotificationPanel")

	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	// Before the configured 07:00.
	require.NoError(t, h.engine.SubmitWait(ctx, Tick(day.Add(6*time.Hour+59*time.Minute))))
	assert.Equal(t, int32(0), h.syncer.calls.Load())

	require.NoError(t, h.engine.SubmitWait(ctx, Tick(day.Add(7*time.Hour))))
	require.Eventually(t, func() bool {
		return h.engine.Rules().Contains("com.synced")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), h.syncer.calls.Load())

	// Later the same day nothing happens.
	require.NoError(t, h.engine.SubmitWait(ctx, Tick(day.Add(15*time.Hour))))
	assert.Equal(t, int32(1), h.syncer.calls.Load())

	// A tick the next morning, even late, syncs again.
	require.NoError(t, h.engine.SubmitWait(ctx, Tick(day.Add(24*time.Hour+9*time.Hour))))
	require.Eventually(t, func() bool { return h.syncer.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		st := h.engine.Status()
		return st.LastSync != nil && st.LastSync.Result == "updated"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTick_SkipsWhenDisabledOrInFlight(t *testing.T) {
	settings := config.DefaultSettings()
	settings.AutoSyncEnabled = false
	h := newHarness(t, settings)
	ctx := context.Background()
	h.engine.Start(ctx)

	noon := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, h.engine.SubmitWait(ctx, Tick(noon)))
	assert.Equal(t, int32(0), h.syncer.calls.Load())

	settings.AutoSyncEnabled = true
	h.settings.Set(settings)
	h.syncer.inFlight.Store(true)
	require.NoError(t, h.engine.SubmitWait(ctx, Tick(noon)))
	assert.Equal(t, int32(0), h.syncer.calls.Load())
}

func TestTick_FailedSyncReported(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	syncErr := &rulesync.SyncError{Kind: rulesync.NetworkUnavailable}
	h.syncer.err = syncErr
	h.engine.Start(ctx)

	done := make(chan struct{})
	h.notifier.On("RulesChanged")
	h.notifier.On("SyncCompleted", rulesync.Unchanged, syncErr).Run(func(mock.Arguments) { close(done) }).Once()

	require.NoError(t, h.engine.SubmitWait(ctx, Tick(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sync completion was not reported")
	}

	st := h.engine.Status()
	require.NotNil(t, st.LastSync)
	assert.Equal(t, "failed", st.LastSync.Result)
	h.notifier.AssertNotCalled(t, "RulesChanged")
}

func TestSyncNow(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	h.syncer.blob = ruleBlob(t, "com.manual")
	h.engine.Start(ctx)

	h.notifier.On("SyncCompleted", rulesync.Updated, nil).Once()
	h.notifier.On("RulesChanged")
	h.ui.On("RecomputeStatusBar")
	h.ui.On("RecomputeNotificationPanel")

	result, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, rulesync.Updated, result)

	require.Eventually(t, func() bool {
		return h.engine.Rules().Contains("com.manual")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentResolveDuringSwap(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	ctx := context.Background()
	require.NoError(t, h.blobs.Put(ctx, store.RulesKey, ruleBlob(t, "com.foo")))
	h.engine.Start(ctx)

	h.ui.On("RecomputeStatusBar")
	h.ui.On("RecomputeNotificationPanel")
	h.notifier.On("RulesChanged")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				d := h.engine.Resolve(resolver.Input{PackageName: "com.foo"})
				if d.Source != resolver.SourceCustom && d.Source != resolver.SourceOriginal {
					t.Errorf("unexpected source %s", d.Source)
					return
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		blob := ruleBlob(t, "com.bar")
		if i%2 == 1 {
			blob = ruleBlob(t, "com.foo", "com.bar")
		}
		require.NoError(t, h.blobs.Put(ctx, store.RulesKey, blob))
		require.NoError(t, h.engine.SubmitWait(ctx, RulesChanged()))
	}
	close(stop)
	wg.Wait()

	assert.True(t, h.engine.Rules().Contains("com.bar"))
}

func TestStop(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.engine.Start(context.Background())
	h.engine.Stop()

	assert.ErrorIs(t, h.engine.Submit(ScreenUnlocked()), ErrStopped)
	assert.ErrorIs(t, h.engine.SubmitWait(context.Background(), ScreenUnlocked()), ErrStopped)

	// Stop is idempotent.
	h.engine.Stop()
}

func TestEventKindNames(t *testing.T) {
	for _, name := range []string{"rules-changed", "cache-refresh", "settings-changed", "package-added", "package-removed", "tick", "screen-unlocked"} {
		_, ok := ParseEventKind(name)
		assert.True(t, ok, name)
	}
	_, ok := ParseEventKind("reboot")
	assert.False(t, ok)

	kind, _ := ParseEventKind("package-added")
	assert.Equal(t, "app-installed", kind.String())
}
