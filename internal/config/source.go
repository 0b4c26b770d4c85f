package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Source supplies the current Settings. Settings must be cheap; Reload
// re-reads the backing storage after an external change.
type Source interface {
	Settings() Settings
	Reload() error
}

// StaticSource always returns the same settings.
type StaticSource struct {
	current atomic.Pointer[Settings]
}

// NewStaticSource creates a source holding s.
func NewStaticSource(s Settings) *StaticSource {
	src := &StaticSource{}
	src.Set(s)
	return src
}

// Settings returns the held settings.
func (s *StaticSource) Settings() Settings { return *s.current.Load() }

// Reload is a no-op.
func (s *StaticSource) Reload() error { return nil }

// Set replaces the held settings.
func (s *StaticSource) Set(v Settings) { s.current.Store(&v) }

// FileSource reads settings from a YAML file. A missing file means defaults.
type FileSource struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Settings]
}

// NewFileSource creates a FileSource and performs the initial load.
func NewFileSource(path string, logger *slog.Logger) (*FileSource, error) {
	src := &FileSource{path: path, logger: logger}
	if err := src.Reload(); err != nil {
		return nil, err
	}
	return src, nil
}

// Settings returns the settings from the last successful load.
func (s *FileSource) Settings() Settings { return *s.current.Load() }

// Reload re-reads the file. On error the previous settings stay in effect.
func (s *FileSource) Reload() error {
	settings := DefaultSettings()

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.logger.Debug("settings file not found, using defaults", "path", s.path)
	case err != nil:
		return fmt.Errorf("failed to read settings %s: %w", s.path, err)
	default:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("failed to parse settings %s: %w", s.path, err)
		}
	}

	settings = settings.Normalize(s.logger)
	s.current.Store(&settings)
	return nil
}

// Save writes settings to the file and makes them current.
func (s *FileSource) Save(settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", s.path, err)
	}
	s.current.Store(&settings)
	return nil
}
