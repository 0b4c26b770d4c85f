package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel signals are published on.
const DefaultChannel = "notifyicon:signals"

// RedisPublisher publishes JSON-encoded signals to a Redis channel so that
// host processes on other connections can react to them.
type RedisPublisher struct {
	signaler
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

var (
	_ Notifier  = (*RedisPublisher)(nil)
	_ Publisher = (*RedisPublisher)(nil)
)

// NewRedisPublisher creates a publisher on channel
func NewRedisPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	p := &RedisPublisher{client: client, channel: channel, logger: logger}
	p.signaler = signaler{pub: p, now: time.Now}
	return p
}

// Publish encodes and publishes sig. Failures are logged, not returned.
func (p *RedisPublisher) Publish(ctx context.Context, sig Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		p.logger.Error("failed to marshal signal", "kind", sig.Kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("failed to publish signal", "kind", sig.Kind, "channel", p.channel, "error", err)
	}
}
