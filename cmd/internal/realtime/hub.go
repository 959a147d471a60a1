package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub maps conversation channel keys to their subscribers.
// Empty channels are dropped as soon as their last member leaves.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewHub constructs a Hub. metrics may be nil.
func NewHub(log *slog.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
		channels: make(map[string]*Channel),
	}
}

// Subscribe attaches client to the channel named key.
func (h *Hub) Subscribe(key string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[key]
	if !ok {
		ch = NewChannel(h.log, key)
		h.channels[key] = ch
	}
	ch.Join(client)
}

// Unsubscribe detaches a client from key.
func (h *Hub) Unsubscribe(key, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[key]
	if !ok {
		return
	}
	if ch.Leave(clientID) == 0 {
		delete(h.channels, key)
	}
}

// Subscribers returns how many clients listen on key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[key].Len()
}

// Channels returns the number of channels with at least one subscriber.
func (h *Hub) Channels() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Publish fans env out to the subscribers of key and returns how many got it.
func (h *Hub) Publish(key string, env Envelope) int {
	h.mu.RLock()
	delivered, dropped := h.channels[key].Broadcast(env)
	h.mu.RUnlock()

	h.metrics.publish(env.Type, dropped)
	if dropped > 0 {
		h.log.Warn("hub.publish.dropped", "channel", key, "type", env.Type, "dropped", dropped)
	}
	return delivered
}

// Notify wraps payload in an envelope of the given kind and publishes it.
// It satisfies chat.Notifier.
func (h *Hub) Notify(_ context.Context, channel, kind string, payload any) error {
	env, err := NewEnvelope(kind, channel, payload, h.now())
	if err != nil {
		return err
	}
	h.Publish(channel, env)
	return nil
}
