package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/pkg/prefsxml"
)

// Compile-time interface assertions
var (
	_ BlobStore     = (*PrefsStore)(nil)
	_ config.Source = (*PrefsStore)(nil)
)

// PrefsStore keeps values in a SharedPreferences-style XML file. The same
// file carries the user settings, so the store doubles as a settings source.
type PrefsStore struct {
	path     string
	logger   *slog.Logger
	mu       sync.Mutex
	settings atomic.Pointer[config.Settings]
}

// NewPrefsStore opens the prefs file at path and loads its settings
func NewPrefsStore(path string, logger *slog.Logger) (*PrefsStore, error) {
	s := &PrefsStore{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get re-reads the file and returns the string value for key
func (s *PrefsStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := prefsxml.Open(s.path)
	if err != nil {
		return "", err
	}
	value, _ := f.GetString(key)
	return value, nil
}

// Put writes key as a string entry
func (s *PrefsStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := prefsxml.Open(s.path)
	if err != nil {
		return err
	}
	f.SetString(key, value)
	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Settings returns the settings from the last Reload
func (s *PrefsStore) Settings() config.Settings {
	return *s.settings.Load()
}

// Reload re-reads the settings keys from the file. Absent keys keep their
// defaults. On error the previous settings stay in effect.
func (s *PrefsStore) Reload() error {
	s.mu.Lock()
	f, err := prefsxml.Open(s.path)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	settings := config.DefaultSettings()
	bools := map[string]*bool{
		config.KeyModuleEnabled:      &settings.ModuleEnabled,
		config.KeyModuleLogEnabled:   &settings.ModuleLogEnabled,
		config.KeyIconFixEnabled:     &settings.IconFixEnabled,
		config.KeyPlaceholderEnabled: &settings.PlaceholderEnabled,
		config.KeyFixNotifyEnabled:   &settings.FixNotifyEnabled,
		config.KeyAutoSyncEnabled:    &settings.AutoSyncEnabled,
		config.KeyForceAppIcon:       &settings.ForceAppIcon,
		config.KeyForceSystemColor:   &settings.ForceSystemColor,
		config.KeyMD3StyleEnabled:    &settings.MD3StyleEnabled,
	}
	for key, dst := range bools {
		if v, ok := f.GetBool(key); ok {
			*dst = v
		}
	}
	if v, ok := f.GetString(config.KeyAutoSyncTime); ok {
		settings.AutoSyncTime = v
	}
	if v, ok := f.GetInt(config.KeyCornerRadius); ok {
		settings.CornerRadius = v
	}
	if v, ok := f.GetInt(config.KeySyncSource); ok {
		settings.SyncSource = config.SyncSource(v)
	}
	if v, ok := f.GetString(config.KeySyncCustomURL); ok {
		settings.SyncCustomURL = v
	}
	if v, ok := f.GetStringSet(config.KeyPromptExclude); ok {
		settings.PromptExclude = v
	}

	settings = settings.Normalize(s.logger)
	s.settings.Store(&settings)
	return nil
}
