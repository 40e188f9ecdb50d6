// Package feed streams engine announcements (submissions, releases) to
// websocket subscribers.
package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/okian/verdict/pkg/metrics"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Message is the envelope written to subscribers.
type Message struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Hub fans messages out to every registered subscriber.
type Hub struct {
	mu      sync.RWMutex
	clients map[Subscriber]struct{}
	now     func() time.Time
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[Subscriber]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a subscriber. Registering on a closed hub closes the client.
func (h *Hub) Register(client Subscriber) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.Close()
		return
	}
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateFeedSubscribers(n)
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(client Subscriber) {
	h.mu.Lock()
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateFeedSubscribers(n)
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish encodes a message of type typ and broadcasts it. Subscribers whose
// send fails are dropped.
func (h *Hub) Publish(typ string, data any) error {
	payload, err := json.Marshal(Message{Type: typ, At: h.now(), Data: data})
	if err != nil {
		return err
	}
	metrics.RecordFeedMessage(typ)
	h.Broadcast(payload)
	return nil
}

// Broadcast sends payload to all subscribers.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var failed []Subscriber
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		c.Close()
		h.Unregister(c)
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[Subscriber]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.Close()
	}
	metrics.UpdateFeedSubscribers(0)
}
