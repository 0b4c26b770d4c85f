package store

import (
	"context"
	"sync"
	"time"
)

// RulesKey is the key under which the serialized rule list is stored.
const RulesKey = "_notify_icon_datas"

// BlobStore persists opaque string values by key. A missing key reads as
// the empty string with no error.
type BlobStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
}

// SyncRecord is one completed rule sync attempt.
type SyncRecord struct {
	ID          int64     `json:"id"`
	Source      string    `json:"source"`
	Result      string    `json:"result"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// SyncHistory records sync attempts for the status endpoint.
type SyncHistory interface {
	RecordSync(ctx context.Context, rec SyncRecord) error
	RecentSyncs(ctx context.Context, limit int) ([]SyncRecord, error)
}

// Compile-time interface assertions
var (
	_ BlobStore   = (*MemoryStore)(nil)
	_ SyncHistory = (*MemoryStore)(nil)
)

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string]string
	history []SyncRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Put stores value under key
func (s *MemoryStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// RecordSync appends rec to the history
func (s *MemoryStore) RecordSync(ctx context.Context, rec SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.history) + 1)
	s.history = append(s.history, rec)
	return nil
}

// RecentSyncs returns up to limit records, newest first
func (s *MemoryStore) RecentSyncs(ctx context.Context, limit int) ([]SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := []SyncRecord{}
	for i := len(s.history) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, s.history[i])
	}
	return records, nil
}
