// Package stream provides real-time data distribution to multiple consumers.
package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"truedata-client/internal/models"
)

// HubConfig holds configuration for the tick fan-out hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of consecutive drops before logging.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize:      256,
		SlowConsumerDropThreshold: 10,
	}
}

// Hub distributes ticks from the live session to multiple consumers via
// buffered channels. Slow consumers have ticks dropped, never block the
// session's dispatch path.
type Hub struct {
	config HubConfig

	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	// Metrics
	ticksReceived  uint64
	ticksBroadcast uint64
	ticksDropped   uint64

	// OnDrop is invoked for each dropped tick (e.g. to bump a counter).
	OnDrop func()
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Symbols      map[string]struct{} // empty means all symbols
	Channel      chan models.Tick
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a new hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a consumer for the given symbols (nil or empty for all)
// and returns the subscriber id and its receive channel.
func (h *Hub) Subscribe(symbols []string) (string, <-chan models.Tick) {
	sub := &Subscriber{
		ID:        uuid.New().String(),
		Symbols:   make(map[string]struct{}, len(symbols)),
		Channel:   make(chan models.Tick, h.config.SubscriberBufferSize),
		CreatedAt: time.Now(),
	}
	for _, s := range symbols {
		sub.Symbols[s] = struct{}{}
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	return sub.ID, sub.Channel
}

// Unsubscribe removes a consumer and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(sub.Channel)
	}
}

// Publish fans a tick out to all matching subscribers. Non-blocking; ticks to
// full subscriber buffers are dropped and counted.
func (h *Hub) Publish(tick models.Tick) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ticksReceived++
	for _, sub := range h.subscribers {
		if len(sub.Symbols) > 0 {
			if _, ok := sub.Symbols[tick.Symbol]; !ok {
				continue
			}
		}
		select {
		case sub.Channel <- tick:
			h.ticksBroadcast++
			sub.DroppedCount = 0
		default:
			h.ticksDropped++
			sub.DroppedCount++
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// Stats returns received/broadcast/dropped tick counts.
func (h *Hub) Stats() (received, broadcast, dropped uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ticksReceived, h.ticksBroadcast, h.ticksDropped
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub.Channel)
	}
}
