package engine

import (
	"fmt"
	"time"
)

// EventKind identifies a trigger delivered by the host.
type EventKind int

const (
	// EventRulesChanged means the stored rules were edited or synced.
	EventRulesChanged EventKind = iota
	// EventCacheRefresh reloads the rules without re-rendering.
	EventCacheRefresh
	// EventSettingsChanged reloads settings and rules without re-rendering.
	EventSettingsChanged
	// EventAppInstalled reports a newly installed package.
	EventAppInstalled
	// EventAppRemoved reports an uninstalled package.
	EventAppRemoved
	// EventTick is the periodic clock tick driving the daily sync.
	EventTick
	// EventScreenUnlocked reports the user unlocking the device.
	EventScreenUnlocked
)

func (k EventKind) String() string {
	switch k {
	case EventRulesChanged:
		return "rules-changed"
	case EventCacheRefresh:
		return "cache-refresh"
	case EventSettingsChanged:
		return "settings-changed"
	case EventAppInstalled:
		return "app-installed"
	case EventAppRemoved:
		return "app-removed"
	case EventTick:
		return "tick"
	case EventScreenUnlocked:
		return "screen-unlocked"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// ParseEventKind maps the names used on the HTTP API onto event kinds.
func ParseEventKind(name string) (EventKind, bool) {
	switch name {
	case "rules-changed":
		return EventRulesChanged, true
	case "cache-refresh":
		return EventCacheRefresh, true
	case "settings-changed":
		return EventSettingsChanged, true
	case "app-installed", "package-added":
		return EventAppInstalled, true
	case "app-removed", "package-removed":
		return EventAppRemoved, true
	case "tick":
		return EventTick, true
	case "screen-unlocked":
		return EventScreenUnlocked, true
	}
	return 0, false
}

// Event is one trigger. Package and Replacing apply to install/remove events;
// Now applies to ticks and defaults to the engine clock when zero.
type Event struct {
	Kind      EventKind
	Package   string
	Replacing bool
	Now       time.Time
}

// RulesChanged builds an EventRulesChanged.
func RulesChanged() Event { return Event{Kind: EventRulesChanged} }

// CacheRefresh builds an EventCacheRefresh.
func CacheRefresh() Event { return Event{Kind: EventCacheRefresh} }

// SettingsChanged builds an EventSettingsChanged.
func SettingsChanged() Event { return Event{Kind: EventSettingsChanged} }

// AppInstalled builds an EventAppInstalled.
func AppInstalled(pkg string, replacing bool) Event {
	return Event{Kind: EventAppInstalled, Package: pkg, Replacing: replacing}
}

// AppRemoved builds an EventAppRemoved.
func AppRemoved(pkg string) Event { return Event{Kind: EventAppRemoved, Package: pkg} }

// Tick builds an EventTick at now.
func Tick(now time.Time) Event { return Event{Kind: EventTick, Now: now} }

// ScreenUnlocked builds an EventScreenUnlocked.
func ScreenUnlocked() Event { return Event{Kind: EventScreenUnlocked} }
