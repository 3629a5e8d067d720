package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

// Hub tracks connected WebSocket clients and fans table changes out to them.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	table   *statestore.Table
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// NewHub creates a hub that answers client queries from table.
func NewHub(table *statestore.Table, logger *logging.Logger) *Hub {
	return &Hub{
		table:   table,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n, "subject", client.subject)
}

// Unregister removes a client. The send channel is closed only by the call
// that actually removed the client, so shutdown and disconnect can race.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n, "subject", client.subject)
}

// BroadcastChange sends c to every client subscribed to ChannelStateChanged
// whose key filter accepts c.Key.
func (h *Hub) BroadcastChange(c statestore.Change) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ChannelStateChanged,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   c,
	})
	if err != nil {
		h.logger.Error("failed to marshal state change", "key", c.Key, "error", err)
		return
	}

	// Client locks are taken only after the hub lock is released.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range clients {
		if client.wants(ChannelStateChanged, c.Key) {
			client.trySend(data)
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("state change relayed", "key", c.Key, "recipients", delivered)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client so their write pumps exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}
