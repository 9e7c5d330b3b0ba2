package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher is the transport capability used to push events to connected
// clients. Implementations must tolerate absent subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Envelope) error
}

// RedisPublisher fans events out through Redis pub/sub, one channel per
// room topic.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish sends the event as JSON on the topic channel.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, event Envelope) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, topic, data).Err()
}

// Hub is an in-process publisher that fans events out to local
// subscribers. It backs the websocket live endpoint and the tests.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Envelope]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Envelope]struct{})}
}

// Subscribe registers for a topic. The returned cancel func must be called
// to release the subscription.
func (h *Hub) Subscribe(topic string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, 64)

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan Envelope]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[topic]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, topic)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of the topic. A subscriber
// whose buffer is full misses the event; clients reconcile via fetch.
func (h *Hub) Publish(_ context.Context, topic string, event Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Tee publishes each event to every underlying publisher, returning the
// first error after attempting all of them.
type Tee []Publisher

func (t Tee) Publish(ctx context.Context, topic string, event Envelope) error {
	var firstErr error
	for _, p := range t {
		if err := p.Publish(ctx, topic, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
