package ws_collab

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ekuzmich/collabrun/internal/bus"
	"github.com/ekuzmich/collabrun/internal/metrics"
)

// Hub tracks only the sockets this instance physically holds. All room
// fanout goes through the event bus: publishes land on every instance
// subscribed to the topic, and each instance re-delivers to its own local
// set, excluding the origin connection. That is the sole cross-instance
// path; instances never talk to each other directly.
type Hub struct {
	bus    bus.Bus
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string]map[*Client]bool
	subs   map[string]bus.Subscription
}

func NewHub(b bus.Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		bus:    b,
		logger: logger,
		topics: make(map[string]map[*Client]bool),
		subs:   make(map[string]bus.Subscription),
	}
}

// Subscribe adds the client to the topic's local delivery set, opening the
// instance's bus subscription if this is the first local member. A failed
// bus subscription refuses the whole operation: without it events from
// other instances would be silently lost.
func (h *Hub) Subscribe(ctx context.Context, client *Client, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.topics[topic]; !ok {
		sub, err := h.bus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		h.topics[topic] = make(map[*Client]bool)
		h.subs[topic] = sub
		go h.pump(topic, sub)
	}
	h.topics[topic][client] = true
	client.topics[topic] = true

	h.logger.Info("client subscribed", "conn_id", client.connID, "topic", topic)
	return nil
}

// Unsubscribe tears down the client's local membership. The bus
// subscription is closed once the last local member leaves.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(client, topic)
}

func (h *Hub) unsubscribeLocked(client *Client, topic string) {
	clients, ok := h.topics[topic]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	delete(client.topics, topic)
	if len(clients) == 0 {
		delete(h.topics, topic)
		if sub, ok := h.subs[topic]; ok {
			delete(h.subs, topic)
			_ = sub.Close()
		}
	}
}

// Detach removes a disconnecting client from every topic it joined. Room
// membership in the store is deliberately left intact.
func (h *Hub) Detach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range client.topics {
		h.unsubscribeLocked(client, topic)
	}
	h.logger.Info("client detached", "conn_id", client.connID)
}

// Broadcast publishes to the bus under the topic. Delivery to local clients
// happens through the same bus subscription as for remote ones, so there is
// exactly one delivery path and no amplification.
func (h *Hub) Broadcast(ctx context.Context, topic string, evt bus.Event, origin string) error {
	if err := h.bus.Publish(ctx, topic, bus.Envelope{Event: evt, Origin: origin}); err != nil {
		h.logger.Error("broadcast failed", "topic", topic, "type", evt.Type, "error", err)
		return err
	}
	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
	return nil
}

// pump re-delivers bus envelopes to the topic's local clients, suppressing
// the origin connection. Exits when the subscription channel closes.
func (h *Hub) pump(topic string, sub bus.Subscription) {
	for env := range sub.Events() {
		h.mu.RLock()
		for client := range h.topics[topic] {
			if client.connID == env.Origin {
				continue
			}
			client.enqueue(env.Event)
		}
		h.mu.RUnlock()
	}
}
