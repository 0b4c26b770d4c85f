package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/notify"
	"codeberg.org/d-buckner/notifyicon/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingApplier struct {
	mu      sync.Mutex
	applied []string
	failOn  string
	panicOn string
}

func (a *recordingApplier) Apply(ctx context.Context, surface Surface, item Item, d resolver.Decision) error {
	if item.PackageName == a.panicOn {
		panic("view detached")
	}
	if item.PackageName == a.failOn {
		return errors.New("view recycled")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, surface.String()+":"+item.ID+":"+d.Source.String())
	return nil
}

func (a *recordingApplier) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.applied...)
}

func customForFoo(in resolver.Input) resolver.Decision {
	if in.PackageName == "com.foo" {
		return resolver.Decision{Source: resolver.SourceCustom, Custom: true}
	}
	return resolver.Decision{Source: resolver.SourceOriginal}
}

func TestRefresh_AppliesEveryItem(t *testing.T) {
	reg := NewRegistry()
	reg.Set(StatusBar, Snapshot{Items: []Item{
		{ID: "1", PackageName: "com.foo"},
		{ID: "2", PackageName: "com.bar"},
	}})
	applier := &recordingApplier{}
	r := NewRefresher(reg, applier, customForFoo, testLogger())

	n := r.Refresh(context.Background(), StatusBar)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"status-bar:1:custom", "status-bar:2:original"}, applier.list())
}

func TestRefresh_SkipsFailingItems(t *testing.T) {
	reg := NewRegistry()
	reg.Set(NotificationPanel, Snapshot{Items: []Item{
		{ID: "1", PackageName: "com.broken"},
		{ID: "2", PackageName: "com.crashy"},
		{ID: "3", PackageName: "com.foo"},
	}})
	applier := &recordingApplier{failOn: "com.broken", panicOn: "com.crashy"}
	r := NewRefresher(reg, applier, customForFoo, testLogger())

	n := r.Refresh(context.Background(), NotificationPanel)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"notification-panel:3:custom"}, applier.list())
}

func TestRefresh_PassesEnvironment(t *testing.T) {
	reg := NewRegistry()
	reg.Set(StatusBar, Snapshot{DarkMode: true, AccentColor: 0xFF123456, Items: []Item{
		{ID: "1", PackageName: "com.foo", SenderPackage: "android", IsGrayscale: true, NativeColor: 0xFF00FF00},
	}})

	var got resolver.Input
	r := NewRefresher(reg, &recordingApplier{}, func(in resolver.Input) resolver.Decision {
		got = in
		return resolver.Decision{}
	}, testLogger())
	r.Refresh(context.Background(), StatusBar)

	assert.Equal(t, resolver.Input{
		PackageName:   "com.foo",
		IsGrayscale:   true,
		NativeColor:   0xFF00FF00,
		DarkMode:      true,
		AccentColor:   0xFF123456,
		SenderPackage: "android",
	}, got)
}

func TestWorker_ProcessesRequests(t *testing.T) {
	reg := NewRegistry()
	reg.Set(StatusBar, Snapshot{Items: []Item{{ID: "1", PackageName: "com.foo"}}})
	reg.Set(NotificationPanel, Snapshot{Items: []Item{{ID: "9", PackageName: "com.bar"}}})
	applier := &recordingApplier{}
	r := NewRefresher(reg, applier, customForFoo, testLogger())

	r.Start(context.Background())
	defer r.Stop()

	r.RecomputeStatusBar(context.Background())
	r.RecomputeNotificationPanel(context.Background())

	require.Eventually(t, func() bool { return len(applier.list()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"status-bar:1:custom", "notification-panel:9:original"}, applier.list())
}

func TestRequest_Coalesces(t *testing.T) {
	r := NewRefresher(NewRegistry(), &recordingApplier{}, customForFoo, testLogger())

	for i := 0; i < 10; i++ {
		r.Request(StatusBar)
	}
	assert.Len(t, r.pending[StatusBar], 1)
}

func TestRegistry_CopiesItems(t *testing.T) {
	reg := NewRegistry()
	items := []Item{{ID: "1", PackageName: "com.foo"}}
	reg.Set(StatusBar, Snapshot{Items: items})
	items[0].PackageName = "changed"

	snap, err := reg.Visible(StatusBar)
	require.NoError(t, err)
	assert.Equal(t, "com.foo", snap.Items[0].PackageName)

	empty, err := reg.Visible(NotificationPanel)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
}

func TestSignalApplier(t *testing.T) {
	hub := notify.NewHub()
	ch := hub.Subscribe()
	a := NewSignalApplier(hub)

	err := a.Apply(context.Background(), StatusBar, Item{ID: "7", PackageName: "com.foo"}, resolver.Decision{
		Source:   resolver.SourceCustom,
		Custom:   true,
		Color:    0xFFFF0000,
		HasColor: true,
		Style:    resolver.Style{Era: resolver.EraLegacy, Tint: 0xFFFF0000},
	})
	require.NoError(t, err)

	sig := <-ch
	assert.Equal(t, notify.KindIconDecision, sig.Kind)
	assert.Equal(t, "com.foo", sig.Package)
	payload, ok := sig.Payload.(Decision)
	require.True(t, ok)
	assert.Equal(t, "status-bar", payload.Surface)
	assert.Equal(t, "custom", payload.Source)
	assert.Equal(t, "#FFFF0000", payload.Color)
}

func TestParseSurface(t *testing.T) {
	s, ok := ParseSurface("notification-panel")
	assert.True(t, ok)
	assert.Equal(t, NotificationPanel, s)
	_, ok = ParseSurface("lock-screen")
	assert.False(t, ok)
}
