// Package hub fans decoded change events out to live subscribers by topic.
package hub

import (
	"sync"

	"go.uber.org/zap"

	"uniportal/internal/metrics"
)

// Subscriber is one live connection's handle. Payloads arrive on C; when the
// buffer is full further payloads for this subscriber are dropped, never
// queued — clients re-fetch authoritative state on reconnect.
type Subscriber struct {
	topics []string
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

// C returns the delivery channel.
func (s *Subscriber) C() <-chan []byte {
	return s.ch
}

// Done is closed when the subscriber is removed from the hub.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Hub routes event payloads to every subscriber of a topic. Subscriptions
// live only as long as the connection; nothing survives a restart.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	buffer int
	log    *zap.Logger
}

// New creates a hub whose subscribers buffer up to buffer payloads each.
func New(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new subscriber for the given topics.
func (h *Hub) Subscribe(topics ...string) *Subscriber {
	sub := &Subscriber{
		topics: topics,
		ch:     make(chan []byte, h.buffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	for _, t := range topics {
		set, ok := h.topics[t]
		if !ok {
			set = make(map[*Subscriber]struct{})
			h.topics[t] = set
		}
		set[sub] = struct{}{}
	}
	h.mu.Unlock()
	metrics.Subscribers.Inc()
	return sub
}

// Unsubscribe removes the subscriber from every topic. Idempotent; payloads
// already buffered stay readable, new ones are no longer routed.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	sub.once.Do(func() {
		h.mu.Lock()
		for _, t := range sub.topics {
			if set, ok := h.topics[t]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.topics, t)
				}
			}
		}
		h.mu.Unlock()
		close(sub.done)
		metrics.Subscribers.Dec()
	})
}

// Publish delivers payload to every current subscriber of topic. Delivery is
// best-effort: the subscriber set is snapshotted under the read lock, then
// sends happen lock-free so a slow reader cannot stall registration.
func (h *Hub) Publish(topic string, payload []byte) {
	h.mu.RLock()
	set := h.topics[topic]
	subs := make([]*Subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- payload:
		default:
			metrics.DroppedPushes.Inc()
			h.log.Warn("subscriber buffer full, dropping push", zap.String("topic", topic))
		}
	}
}
