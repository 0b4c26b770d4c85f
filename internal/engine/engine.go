package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/notify"
	"codeberg.org/d-buckner/notifyicon/internal/resolver"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
	"codeberg.org/d-buckner/notifyicon/internal/rulesync"
	"codeberg.org/d-buckner/notifyicon/internal/store"
)

// ErrStopped is returned when submitting to an engine that is not running.
var ErrStopped = errors.New("engine stopped")

// Recomputer re-renders on-screen icons after the rules changed.
type Recomputer interface {
	RecomputeStatusBar(ctx context.Context)
	RecomputeNotificationPanel(ctx context.Context)
}

// SyncRunner performs rule syncs.
type SyncRunner interface {
	Sync(ctx context.Context) (rulesync.Result, error)
	InFlight() bool
}

var _ SyncRunner = (*rulesync.Syncer)(nil)

// Config tunes the engine's timing.
type Config struct {
	SettleDelay  time.Duration // wait before re-reading storage after a change (default: 300ms)
	TickInterval time.Duration // internal clock tick; zero disables it
}

// DefaultConfig returns sensible defaults for the engine.
func DefaultConfig() Config {
	return Config{
		SettleDelay:  300 * time.Millisecond,
		TickInterval: time.Minute,
	}
}

// Options wires the engine's collaborators.
type Options struct {
	Blobs    store.BlobStore
	Settings config.Source
	Syncer   SyncRunner
	UI       Recomputer
	Notifier notify.Notifier
	Resolver *resolver.Resolver
	Config   Config
	Logger   *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// SyncStatus describes the most recent sync attempt.
type SyncStatus struct {
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
	Completed time.Time `json:"completed"`
}

// Status is a point-in-time summary of the engine.
type Status struct {
	RuleCount    int         `json:"ruleCount"`
	UsingCache   bool        `json:"usingCache"`
	SyncInFlight bool        `json:"syncInFlight"`
	LastSync     *SyncStatus `json:"lastSync,omitempty"`
}

type queuedEvent struct {
	ev   Event
	done chan struct{}
}

// Engine owns the cached RuleSet. Resolution reads an immutable snapshot
// without locking; all writes happen on a single worker goroutine that
// processes host triggers in order.
type Engine struct {
	blobs    store.BlobStore
	settings config.Source
	syncer   SyncRunner
	ui       Recomputer
	notifier notify.Notifier
	resolver *resolver.Resolver
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	rules      atomic.Pointer[rules.RuleSet]
	usingCache atomic.Bool
	lastSync   atomic.Pointer[SyncStatus]

	eventCh   chan queuedEvent
	stopCh    chan struct{}
	stoppedCh chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	bg        sync.WaitGroup

	// lastSyncDay is only touched by the worker.
	lastSyncDay string
}

// New creates an engine. Call Start before submitting events.
func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{
		blobs:     opts.Blobs,
		settings:  opts.Settings,
		syncer:    opts.Syncer,
		ui:        opts.UI,
		notifier:  opts.Notifier,
		resolver:  opts.Resolver,
		cfg:       opts.Config,
		logger:    opts.Logger,
		now:       opts.Now,
		eventCh:   make(chan queuedEvent, 100), // Buffer to avoid blocking host callbacks
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	e.rules.Store(rules.NewRuleSet(nil))
	return e
}

// Start loads the current rules and begins the worker goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.ctx, e.cancel = context.WithCancel(ctx)
		e.reload(e.ctx)
		e.started.Store(true)
		go e.worker()
	})
}

// Stop signals the worker to stop and waits for it and any background sync.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		if !e.started.Load() {
			return
		}
		<-e.stoppedCh
		e.cancel()
		e.bg.Wait()
	})
}

// Rules returns the current snapshot. The result must not be modified.
func (e *Engine) Rules() *rules.RuleSet {
	return e.rules.Load()
}

// UsingCache reports whether the host is rendering from the cached rules.
func (e *Engine) UsingCache() bool {
	return e.usingCache.Load()
}

// Settings returns the current settings.
func (e *Engine) Settings() config.Settings {
	return e.settings.Settings()
}

// Resolve decides the icon for one notification against the current snapshot.
func (e *Engine) Resolve(in resolver.Input) resolver.Decision {
	s := e.settings.Settings()
	d := e.resolver.Resolve(in, s, e.rules.Load())
	if s.ModuleLogEnabled {
		e.logger.Debug("resolved icon", "package", in.PackageName, "grayscale", in.IsGrayscale,
			"source", d.Source.String(), "era", d.Style.Era.String())
	}
	return d
}

// Status returns a summary for the status endpoint.
func (e *Engine) Status() Status {
	st := Status{
		RuleCount:  e.rules.Load().Len(),
		UsingCache: e.usingCache.Load(),
		LastSync:   e.lastSync.Load(),
	}
	if e.syncer != nil {
		st.SyncInFlight = e.syncer.InFlight()
	}
	return st
}

// Submit queues ev for the worker and returns without waiting.
func (e *Engine) Submit(ev Event) error {
	return e.enqueue(context.Background(), queuedEvent{ev: ev})
}

// SubmitWait queues ev and waits until the worker has handled it.
func (e *Engine) SubmitWait(ctx context.Context, ev Event) error {
	qe := queuedEvent{ev: ev, done: make(chan struct{})}
	if err := e.enqueue(ctx, qe); err != nil {
		return err
	}

	select {
	case <-qe.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stoppedCh:
		return ErrStopped
	}
}

func (e *Engine) enqueue(ctx context.Context, qe queuedEvent) error {
	select {
	case <-e.stopCh:
		return ErrStopped
	default:
	}

	select {
	case e.eventCh <- qe:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return ErrStopped
	}
}

// SyncNow runs a sync on the caller's goroutine and applies its outcome.
func (e *Engine) SyncNow(ctx context.Context) (rulesync.Result, error) {
	result, err := e.syncer.Sync(ctx)
	e.afterSync(ctx, result, err)
	return result, err
}

// worker is the main loop that processes host triggers.
func (e *Engine) worker() {
	defer close(e.stoppedCh)

	var tickC <-chan time.Time
	if e.cfg.TickInterval > 0 {
		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-e.stopCh:
			e.drain()
			return
		case qe := <-e.eventCh:
			e.process(qe)
		case <-tickC:
			e.process(queuedEvent{ev: Tick(e.now())})
		}
	}
}

// drain releases waiters of events that will not be handled.
func (e *Engine) drain() {
	for {
		select {
		case qe := <-e.eventCh:
			if qe.done != nil {
				close(qe.done)
			}
		default:
			return
		}
	}
}

func (e *Engine) process(qe queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while handling event", "event", qe.ev.Kind.String(), "panic", r)
		}
		if qe.done != nil {
			close(qe.done)
		}
	}()

	e.handle(qe.ev)
}

func (e *Engine) handle(ev Event) {
	ctx := e.ctx
	e.logger.Debug("handling event", "event", ev.Kind.String(), "package", ev.Package)

	switch ev.Kind {
	case EventRulesChanged:
		e.refresh(ctx, true)
	case EventCacheRefresh:
		e.refresh(ctx, false)
	case EventSettingsChanged:
		if err := e.settings.Reload(); err != nil {
			e.logger.Warn("failed to reload settings, keeping previous", "error", err)
		}
		e.refresh(ctx, false)
	case EventAppInstalled:
		e.handleInstalled(ctx, ev)
	case EventAppRemoved:
		e.notifier.WithdrawPrompt(ctx, ev.Package)
	case EventTick:
		now := ev.Now
		if now.IsZero() {
			now = e.now()
		}
		e.handleTick(now)
	case EventScreenUnlocked:
		if e.usingCache.Load() {
			e.ui.RecomputeStatusBar(ctx)
		}
	default:
		e.logger.Warn("ignoring unknown event", "event", ev.Kind.String())
	}
}

// refresh waits for storage to settle, swaps in the stored rules and
// optionally re-renders.
func (e *Engine) refresh(ctx context.Context, recompute bool) {
	if !e.settle() {
		return
	}

	e.usingCache.Store(true)
	e.reload(ctx)

	if recompute {
		e.ui.RecomputeStatusBar(ctx)
		e.ui.RecomputeNotificationPanel(ctx)
		e.notifier.RulesChanged(ctx)
	}
}

// settle sleeps for the settle delay. It returns false if the engine stopped meanwhile.
func (e *Engine) settle() bool {
	if e.cfg.SettleDelay <= 0 {
		return true
	}

	timer := time.NewTimer(e.cfg.SettleDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-e.stopCh:
		return false
	}
}

// reload reads and parses the stored blob. The previous snapshot stays in
// place when storage fails or the document is not a JSON array.
func (e *Engine) reload(ctx context.Context) bool {
	blob, err := e.blobs.Get(ctx, store.RulesKey)
	if err != nil {
		e.logger.Warn("failed to read stored rules, keeping previous snapshot", "error", err)
		return false
	}

	set, report := rules.ParseWithReport(blob)
	if report.Malformed {
		e.logger.Warn("stored rules are malformed, keeping previous snapshot", "error", report.Err)
		return false
	}
	if report.Dropped > 0 {
		e.logger.Warn("some rules failed to load", "dropped", report.Dropped, "total", report.Total)
	}

	e.rules.Store(set)
	e.logger.Info("rules loaded", "count", set.Len())
	return true
}

func (e *Engine) handleInstalled(ctx context.Context, ev Event) {
	if ev.Replacing {
		return
	}

	s := e.settings.Settings()
	if !s.IconFixEnabled || !s.FixNotifyEnabled {
		return
	}
	if e.rules.Load().Contains(ev.Package) {
		return
	}
	if s.PromptExcluded(ev.Package) {
		e.logger.Debug("package excluded from prompt", "package", ev.Package)
		return
	}

	e.notifier.PromptUnsupported(ctx, ev.Package)
}

// handleTick starts the daily sync once per calendar day at or after the
// configured time.
func (e *Engine) handleTick(now time.Time) {
	s := e.settings.Settings()
	if !s.DailySyncEnabled() {
		return
	}
	hour, minute, ok := s.AutoSyncClock()
	if !ok {
		return
	}

	today := now.Format(time.DateOnly)
	if e.lastSyncDay == today {
		return
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(due) {
		return
	}
	if e.syncer.InFlight() {
		e.logger.Debug("sync already in flight, skipping scheduled sync")
		return
	}

	e.lastSyncDay = today
	e.logger.Info("starting scheduled rule sync", "day", today)

	ctx := e.ctx
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		result, err := e.syncer.Sync(ctx)
		e.afterSync(ctx, result, err)
	}()
}

// afterSync records the outcome, reports it, and queues a refresh when the
// stored rules changed.
func (e *Engine) afterSync(ctx context.Context, result rulesync.Result, err error) {
	status := &SyncStatus{Result: result.String(), Completed: e.now()}
	if err != nil {
		status.Result = "failed"
		status.Error = err.Error()
	}
	e.lastSync.Store(status)

	e.notifier.SyncCompleted(ctx, result, err)

	if err == nil && result == rulesync.Updated {
		if serr := e.Submit(RulesChanged()); serr != nil {
			e.logger.Warn("failed to queue rules refresh after sync", "error", serr)
		}
	}
}
