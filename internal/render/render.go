package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"codeberg.org/d-buckner/notifyicon/internal/resolver"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
)

// Surface is a place where notification icons are drawn.
type Surface int

const (
	StatusBar Surface = iota
	NotificationPanel
)

func (s Surface) String() string {
	if s == NotificationPanel {
		return "notification-panel"
	}
	return "status-bar"
}

// ParseSurface maps a surface name onto a Surface.
func ParseSurface(name string) (Surface, bool) {
	switch name {
	case "status-bar":
		return StatusBar, true
	case "notification-panel":
		return NotificationPanel, true
	}
	return 0, false
}

// Item is one icon currently on screen.
type Item struct {
	ID            string      `json:"id"`
	PackageName   string      `json:"packageName"`
	SenderPackage string      `json:"senderPackage,omitempty"`
	IsGrayscale   bool        `json:"isGrayscale"`
	NativeColor   rules.Color `json:"nativeColor,omitempty"`
}

// Snapshot is the visible state of a surface.
type Snapshot struct {
	DarkMode    bool        `json:"darkMode"`
	AccentColor rules.Color `json:"accentColor,omitempty"`
	Items       []Item      `json:"items"`
}

// ViewSource lists what is on screen.
type ViewSource interface {
	Visible(surface Surface) (Snapshot, error)
}

// ViewApplier hands a decision to whatever owns view mutation. Calls are
// made one at a time.
type ViewApplier interface {
	Apply(ctx context.Context, surface Surface, item Item, d resolver.Decision) error
}

// ResolveFunc decides the icon for one input.
type ResolveFunc func(resolver.Input) resolver.Decision

// Refresher re-renders every visible icon of a surface on a background
// worker. Requests arriving while a batch runs collapse into one follow-up.
type Refresher struct {
	source  ViewSource
	applier ViewApplier
	resolve ResolveFunc
	logger  *slog.Logger

	pending [2]chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRefresher creates a refresher. Call Start to begin processing.
func NewRefresher(source ViewSource, applier ViewApplier, resolve ResolveFunc, logger *slog.Logger) *Refresher {
	r := &Refresher{
		source:  source,
		applier: applier,
		resolve: resolve,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	for i := range r.pending {
		r.pending[i] = make(chan struct{}, 1)
	}
	return r
}

// SetResolver replaces the resolve function. Must be called before Start.
func (r *Refresher) SetResolver(fn ResolveFunc) {
	r.resolve = fn
}

// Start begins the worker goroutine.
func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.worker(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
func (r *Refresher) Stop() {
	r.once.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Request schedules a refresh of surface without blocking.
func (r *Refresher) Request(surface Surface) {
	select {
	case r.pending[surface] <- struct{}{}:
	default:
		// Already pending
	}
}

// RecomputeStatusBar schedules a status bar refresh.
func (r *Refresher) RecomputeStatusBar(ctx context.Context) {
	r.Request(StatusBar)
}

// RecomputeNotificationPanel schedules a notification panel refresh.
func (r *Refresher) RecomputeNotificationPanel(ctx context.Context) {
	r.Request(NotificationPanel)
}

func (r *Refresher) worker(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-r.pending[StatusBar]:
			r.Refresh(ctx, StatusBar)
		case <-r.pending[NotificationPanel]:
			r.Refresh(ctx, NotificationPanel)
		}
	}
}

// Refresh resolves and applies every visible item of surface. A failing
// item is logged and skipped. It returns the number of items applied.
func (r *Refresher) Refresh(ctx context.Context, surface Surface) int {
	snap, err := r.source.Visible(surface)
	if err != nil {
		r.logger.Warn("failed to list visible icons", "surface", surface.String(), "error", err)
		return 0
	}

	applied := 0
	for _, item := range snap.Items {
		if ctx.Err() != nil {
			break
		}
		if err := r.applyOne(ctx, surface, snap, item); err != nil {
			r.logger.Warn("failed to refresh icon", "surface", surface.String(),
				"id", item.ID, "package", item.PackageName, "error", err)
			continue
		}
		applied++
	}

	r.logger.Debug("refreshed icons", "surface", surface.String(), "applied", applied, "visible", len(snap.Items))
	return applied
}

func (r *Refresher) applyOne(ctx context.Context, surface Surface, snap Snapshot, item Item) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	d := r.resolve(resolver.Input{
		PackageName:   item.PackageName,
		IsGrayscale:   item.IsGrayscale,
		NativeColor:   item.NativeColor,
		DarkMode:      snap.DarkMode,
		AccentColor:   snap.AccentColor,
		SenderPackage: item.SenderPackage,
	})
	return r.applier.Apply(ctx, surface, item, d)
}
