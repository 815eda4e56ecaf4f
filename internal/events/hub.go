package events

import (
	"context"
	"sync"
	"time"

	"github.com/streamhaven/mediasync/internal/logging"
	"github.com/streamhaven/mediasync/internal/metrics"
	"github.com/streamhaven/mediasync/pkg/models"
)

// Publisher forwards broadcast events to other process instances
type Publisher interface {
	Publish(ctx context.Context, event models.BroadcastEvent) error
}

// Client is one live admin connection registered with the hub. The SSE
// transport drains Events and writes frames until the channel closes.
type Client struct {
	ID string
	ch chan models.BroadcastEvent
}

// Events returns the channel the transport reads frames from
func (c *Client) Events() <-chan models.BroadcastEvent {
	return c.ch
}

// Hub is the process-local connection registry and broadcast fan-out.
// Registration and broadcast race from independent request-handling
// goroutines, so the registry is guarded by a RWMutex.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	buffer   int
	logger   *logging.Logger
	relay    Publisher
	shutdown bool
}

// NewHub creates a new hub. buffer is the per-client event queue depth;
// a client that falls that far behind is dropped.
func NewHub(buffer int, logger *logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  buffer,
		logger:  logger,
	}
}

// AttachRelay wires a cross-process publisher; broadcasts are mirrored to
// it after local delivery.
func (h *Hub) AttachRelay(relay Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = relay
}

// AddClient registers a live connection. Registering an id twice replaces
// the prior connection, which is closed.
func (h *Hub) AddClient(id string) *Client {
	client := &Client{ID: id, ch: make(chan models.BroadcastEvent, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.shutdown {
		close(client.ch)
		return client
	}

	if prior, ok := h.clients[id]; ok {
		close(prior.ch)
	}
	h.clients[id] = client
	metrics.SSEConnections.Set(float64(len(h.clients)))

	return client
}

// RemoveClient deregisters a connection. Safe to call on an id that is not
// present, and safe to call more than once for the same connection.
func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(client.ch)
	metrics.SSEConnections.Set(float64(len(h.clients)))
}

// ClientCount returns the number of registered connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers an event to every registered connection and mirrors
// it to the relay when one is attached. Delivery is best effort: a client
// whose queue is full is dropped without delaying the rest, and no event
// is buffered for clients that are not connected.
func (h *Hub) Broadcast(name string, data interface{}) {
	event := models.BroadcastEvent{
		Name:      name,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()

	h.deliver(event)

	if relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := relay.Publish(ctx, event); err != nil {
			// Notification is best effort, local delivery already happened
			h.logger.WithError(err).Warn("Failed to publish broadcast to relay")
		}
	}
}

// deliver fans an event out to local connections only
func (h *Hub) deliver(event models.BroadcastEvent) {
	var stalled []string

	h.mu.RLock()
	delivered := 0
	for id, client := range h.clients {
		select {
		case client.ch <- event:
			delivered++
		default:
			stalled = append(stalled, id)
		}
	}
	h.mu.RUnlock()

	metrics.EventsBroadcastTotal.WithLabelValues(event.Name).Add(float64(delivered))
	h.logger.LogBroadcast(event.Name, delivered, len(stalled))

	for _, id := range stalled {
		h.logger.WithConnectionID(id).Warn("Dropping stalled connection")
		metrics.SSEConnectionsDropped.Inc()
		h.RemoveClient(id)
	}
}

// Shutdown closes every registered connection and rejects new ones
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.shutdown = true
	for id, client := range h.clients {
		close(client.ch)
		delete(h.clients, id)
	}
	metrics.SSEConnections.Set(0)
}
