package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	prefsPrefix    = "notifyicon:prefs:"
	syncHistoryKey = "notifyicon:sync_history"
	maxSyncHistory = 100
)

// Compile-time interface assertions
var (
	_ BlobStore   = (*RedisStore)(nil)
	_ SyncHistory = (*RedisStore)(nil)
)

// RedisStore keeps values in Redis
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(redisAddr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client for publishers sharing the connection
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Get returns the value for key
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, prefsPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key
func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, prefsPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// RecordSync pushes rec onto a capped list
func (s *RedisStore) RecordSync(ctx context.Context, rec SyncRecord) error {
	rec.ID = rec.StartedAt.UnixNano()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal sync record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, syncHistoryKey, data)
	pipe.LTrim(ctx, syncHistoryKey, 0, maxSyncHistory-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return nil
}

// RecentSyncs returns up to limit records, newest first
func (s *RedisStore) RecentSyncs(ctx context.Context, limit int) ([]SyncRecord, error) {
	items, err := s.client.LRange(ctx, syncHistoryKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sync history: %w", err)
	}

	records := make([]SyncRecord, 0, len(items))
	for _, item := range items {
		var rec SyncRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
