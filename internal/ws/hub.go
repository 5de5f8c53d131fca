package ws

import (
	"context"
	"time"

	"healthboard/pkg/logger"
)

// Message types pushed to dashboard clients.
const (
	MessageTypeConnectionEstablished = "connection_established"
	MessageTypeSyncStatus            = "sync_status"
	MessageTypeSyncCompleted         = "sync_completed"
	MessageTypePing                  = "ping"
	MessageTypePong                  = "pong"
)

// Message is the wire format for all push notifications.
type Message struct {
	Type       string `json:"type"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// Hub maintains the set of connected dashboard clients and fans broadcast
// messages out to them. Slow clients are dropped rather than allowed to
// block the rest.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	maxConnections int
	logger         *logger.Logger
}

// NewHub creates a new client hub.
func NewHub(maxConnections int, log *logger.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan Message, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		maxConnections: maxConnections,
		logger:         log,
	}
}

// Run processes client lifecycle events and broadcasts until the context is
// canceled, then closes every remaining client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.logger.Info("Push hub stopped")
			return

		case client := <-h.register:
			if len(h.clients) >= h.maxConnections {
				h.logger.WithField("max_connections", h.maxConnections).Warn("Connection limit reached, rejecting client")
				close(client.send)
				continue
			}
			h.clients[client] = true
			client.send <- Message{
				Type:      MessageTypeConnectionEstablished,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}
			h.logger.WithField("total_clients", len(h.clients)).Info("Push client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.WithField("total_clients", len(h.clients)).Info("Push client disconnected")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Broadcast queues a message for all connected clients. When the queue is
// full the message is dropped; push notifications are best effort.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithField("message_type", msg.Type).Warn("Broadcast queue full, dropping message")
	}
}

// NotifySyncStatus pushes a manual refresh admission decision to all clients.
func (h *Hub) NotifySyncStatus(status, message string) {
	h.Broadcast(Message{
		Type:    MessageTypeSyncStatus,
		Status:  status,
		Message: message,
	})
}

// NotifySyncCompleted pushes the outcome of a finished sync pass.
func (h *Hub) NotifySyncCompleted(success bool, durationMs int64) {
	h.Broadcast(Message{
		Type:       MessageTypeSyncCompleted,
		Success:    &success,
		DurationMs: durationMs,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
