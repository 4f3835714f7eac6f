package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	logger *zap.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages from the system to broadcast
	broadcast chan Message

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	done    chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. Call in a goroutine.
func (h *Hub) Run() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.running = false
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client connected",
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("total_clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected",
				zap.Int("total_clients", count))

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("failed to marshal websocket message", zap.Error(err))
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				if !client.authenticated {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Slow consumer, drop it
					go h.evict(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// evict hands a slow client to the unregister loop. Returns once the hub
// takes the client or shuts down, so it never leaks past Stop.
func (h *Hub) evict(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Stop shuts down the hub and closes all client connections.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	close(h.done)
}

// Broadcast queues a message for delivery to all authenticated clients.
// Drops the message when the hub backlog is full rather than blocking
// the input loop.
func (h *Hub) Broadcast(message Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("websocket broadcast backlog full, dropping message",
			zap.String("type", string(message.Type)))
	}
}

// BroadcastCalibrationState implements calibration.Broadcaster for any
// snapshot payload.
func (h *Hub) BroadcastCalibrationState(state interface{}) {
	h.Broadcast(NewCalibrationStateMessage(state))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
