package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IGLOU-EU/go-wildcard"
)

// SyncSource selects where rule lists are downloaded from.
type SyncSource int

const (
	SyncDefaultHost SyncSource = iota
	SyncProxyHost
	SyncCustomURL
)

func (s SyncSource) String() string {
	switch s {
	case SyncDefaultHost:
		return "default-host"
	case SyncProxyHost:
		return "proxy-host"
	case SyncCustomURL:
		return "custom-url"
	}
	return fmt.Sprintf("sync-source(%d)", int(s))
}

// Preference keys shared by the YAML settings file and the prefs XML store.
const (
	KeyModuleEnabled      = "_enable_module"
	KeyModuleLogEnabled   = "_enable_module_log"
	KeyIconFixEnabled     = "_notify_icon_fix"
	KeyPlaceholderEnabled = "_notify_icon_fix_placeholder"
	KeyFixNotifyEnabled   = "_notify_icon_fix_notify"
	KeyAutoSyncEnabled    = "_enable_notify_icon_fix_auto"
	KeyAutoSyncTime       = "_notify_icon_fix_auto_time"
	KeyForceAppIcon       = "_notify_icon_force_app_icon"
	KeyForceSystemColor   = "_notify_icon_force_system_color"
	KeyMD3StyleEnabled    = "_notify_icon_md3_style"
	KeyCornerRadius       = "_notify_icon_corner"
	KeySyncSource         = "_rule_source_sync_way"
	KeySyncCustomURL      = "_rule_source_sync_way_custom_url"
	KeyPromptExclude      = "_notify_icon_fix_notify_exclude"
)

const (
	DefaultAutoSyncTime = "07:00"
	DefaultCornerRadius = 15
	MaxCornerRadius     = 40
)

// Settings are the user-facing switches read on every resolution.
type Settings struct {
	ModuleEnabled      bool       `yaml:"_enable_module"`
	ModuleLogEnabled   bool       `yaml:"_enable_module_log"`
	IconFixEnabled     bool       `yaml:"_notify_icon_fix"`
	PlaceholderEnabled bool       `yaml:"_notify_icon_fix_placeholder"`
	FixNotifyEnabled   bool       `yaml:"_notify_icon_fix_notify"`
	AutoSyncEnabled    bool       `yaml:"_enable_notify_icon_fix_auto"`
	AutoSyncTime       string     `yaml:"_notify_icon_fix_auto_time"`
	ForceAppIcon       bool       `yaml:"_notify_icon_force_app_icon"`
	ForceSystemColor   bool       `yaml:"_notify_icon_force_system_color"`
	MD3StyleEnabled    bool       `yaml:"_notify_icon_md3_style"`
	CornerRadius       int        `yaml:"_notify_icon_corner"`
	SyncSource         SyncSource `yaml:"_rule_source_sync_way"`
	SyncCustomURL      string     `yaml:"_rule_source_sync_way_custom_url"`
	PromptExclude      []string   `yaml:"_notify_icon_fix_notify_exclude"`
}

// DefaultSettings returns the settings used when nothing has been configured.
func DefaultSettings() Settings {
	return Settings{
		ModuleEnabled:    true,
		IconFixEnabled:   true,
		FixNotifyEnabled: true,
		AutoSyncEnabled:  true,
		AutoSyncTime:     DefaultAutoSyncTime,
		MD3StyleEnabled:  true,
		CornerRadius:     DefaultCornerRadius,
		SyncSource:       SyncProxyHost,
		PromptExclude:    []string{"android", "com.android.*"},
	}
}

// Normalize replaces invalid values with defaults and logs each replacement.
func (s Settings) Normalize(logger *slog.Logger) Settings {
	if _, _, ok := parseClock(s.AutoSyncTime); !ok {
		logger.Warn("invalid auto sync time, using default", "value", s.AutoSyncTime, "default", DefaultAutoSyncTime)
		s.AutoSyncTime = DefaultAutoSyncTime
	}
	if s.CornerRadius < 0 || s.CornerRadius > MaxCornerRadius {
		logger.Warn("corner radius out of range, using default", "value", s.CornerRadius, "default", DefaultCornerRadius)
		s.CornerRadius = DefaultCornerRadius
	}
	switch s.SyncSource {
	case SyncDefaultHost, SyncProxyHost, SyncCustomURL:
	default:
		logger.Warn("unknown sync source, using proxy host", "value", int(s.SyncSource))
		s.SyncSource = SyncProxyHost
	}
	return s
}

// AutoSyncClock returns the hour and minute of the daily sync.
func (s Settings) AutoSyncClock() (hour, minute int, ok bool) {
	return parseClock(s.AutoSyncTime)
}

// DailySyncEnabled reports whether the scheduler should sync automatically.
func (s Settings) DailySyncEnabled() bool {
	return s.IconFixEnabled && s.FixNotifyEnabled && s.AutoSyncEnabled
}

// PromptExcluded reports whether pkg matches one of the exclusion patterns.
func (s Settings) PromptExcluded(pkg string) bool {
	for _, pattern := range s.PromptExclude {
		if wildcard.Match(pattern, pkg) {
			return true
		}
	}
	return false
}

func parseClock(v string) (int, int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}
