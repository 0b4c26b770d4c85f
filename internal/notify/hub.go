package notify

import (
	"context"
	"sync"
	"time"
)

const subscriberBuffer = 32

// Hub fans signals out to in-process subscribers, such as SSE clients.
// A subscriber whose channel is full misses the signal.
type Hub struct {
	signaler
	subscribers map[chan Signal]struct{}
	mu          sync.RWMutex
}

var (
	_ Notifier  = (*Hub)(nil)
	_ Publisher = (*Hub)(nil)
)

// NewHub creates a new signal hub
func NewHub() *Hub {
	h := &Hub{subscribers: make(map[chan Signal]struct{})}
	h.signaler = signaler{pub: h, now: time.Now}
	return h
}

// Subscribe creates a new subscription channel
func (h *Hub) Subscribe() chan Signal {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Signal, subscriberBuffer)
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription channel
func (h *Hub) Unsubscribe(ch chan Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	delete(h.subscribers, ch)
	close(ch)
}

// Publish sends sig to all subscribers
func (h *Hub) Publish(ctx context.Context, sig Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- sig:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
