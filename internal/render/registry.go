package render

import (
	"context"
	"sync"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/notify"
	"codeberg.org/d-buckner/notifyicon/internal/resolver"
)

// Registry is a ViewSource fed by the host, which reports what each
// surface currently shows.
type Registry struct {
	mu    sync.RWMutex
	views map[Surface]Snapshot
}

var _ ViewSource = (*Registry)(nil)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{views: make(map[Surface]Snapshot)}
}

// Set replaces what surface shows.
func (r *Registry) Set(surface Surface, snap Snapshot) {
	items := make([]Item, len(snap.Items))
	copy(items, snap.Items)
	snap.Items = items

	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[surface] = snap
}

// Visible returns a copy of what surface shows.
func (r *Registry) Visible(surface Surface) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := r.views[surface]
	items := make([]Item, len(snap.Items))
	copy(items, snap.Items)
	snap.Items = items
	return snap, nil
}

// Decision is the wire form of an applied decision.
type Decision struct {
	Surface string         `json:"surface"`
	Item    Item           `json:"item"`
	Source  string         `json:"source"`
	Custom  bool           `json:"custom"`
	Style   resolver.Style `json:"style"`
	Color   string         `json:"color,omitempty"`
	Rule    string         `json:"rule,omitempty"`
}

// SignalApplier forwards each decision to a publisher, leaving the actual
// view mutation to the host that subscribes to it.
type SignalApplier struct {
	pub notify.Publisher
}

var _ ViewApplier = (*SignalApplier)(nil)

// NewSignalApplier creates an applier publishing to pub
func NewSignalApplier(pub notify.Publisher) *SignalApplier {
	return &SignalApplier{pub: pub}
}

// Apply publishes d as an icon-decision signal.
func (a *SignalApplier) Apply(ctx context.Context, surface Surface, item Item, d resolver.Decision) error {
	payload := Decision{
		Surface: surface.String(),
		Item:    item,
		Source:  d.Source.String(),
		Custom:  d.Custom,
		Style:   d.Style,
	}
	if d.HasColor {
		payload.Color = d.Color.String()
	}
	if d.Rule != nil {
		payload.Rule = d.Rule.PackageName
	}

	a.pub.Publish(ctx, notify.Signal{
		Kind:    notify.KindIconDecision,
		Package: item.PackageName,
		Payload: payload,
		At:      time.Now(),
	})
	return nil
}
