package backend

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/osk/fintrack/internal/domain"
)

// Hub fans push acknowledgements out to stream subscribers. Subscribers are
// grouped per tenant; a tenant with no open stream simply receives nothing,
// the sync engine learns the outcome from the push response either way.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	logger *slog.Logger
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger,
	}
}

func (h *Hub) add(tenantID string, conn *websocket.Conn) *subscriber {
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[*subscriber]struct{})
	}
	h.subs[tenantID][sub] = struct{}{}
	return sub
}

func (h *Hub) remove(tenantID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[tenantID], sub)
}

// Broadcast sends one sync frame to every subscriber of the tenant. A write
// failure drops only the affected subscriber's frame; its read loop will
// notice the dead connection and unregister it.
func (h *Hub) Broadcast(tenantID string, msg domain.SyncMessage) {
	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs[tenantID]))
	for sub := range h.subs[tenantID] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.mu.Lock()
		err := sub.conn.WriteJSON(msg)
		sub.mu.Unlock()
		if err != nil {
			h.logger.Warn("stream write failed",
				slog.String("tenant_id", tenantID),
				slog.String("entity_id", msg.EntityID),
				slog.String("error", err.Error()),
			)
		}
	}
}
