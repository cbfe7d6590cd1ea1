package websocket

import (
	"encoding/json"
	"sync"

	"github.com/movira/transreg-backend/pkg/logger"
	"github.com/movira/transreg-backend/pkg/queue"
)

// Client is one connected reviewer dashboard session.
type Client struct {
	Hub    *Hub
	Conn   *Conn
	UserID uint
	Send   chan []byte
}

// Hub fans verification events out to connected reviewer dashboards.
// Multiple sessions per user are supported.
type Hub struct {
	clients map[uint][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint][]*Client),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		broadcast:  make(chan []byte, 256),
	}
}

// Run processes register/unregister/broadcast events. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			logger.Debug("WebSocket client registered", map[string]interface{}{
				"user_id": client.UserID,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			sessions := h.clients[client.UserID]
			for i, existing := range sessions {
				if existing == client {
					h.clients[client.UserID] = append(sessions[:i], sessions[i+1:]...)
					close(client.Send)
					break
				}
			}
			if len(h.clients[client.UserID]) == 0 {
				delete(h.clients, client.UserID)
			}
			h.mu.Unlock()
			logger.Debug("WebSocket client unregistered", map[string]interface{}{
				"user_id": client.UserID,
			})

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, sessions := range h.clients {
				for _, client := range sessions {
					select {
					case client.Send <- message:
					default:
						// Slow consumer: drop the message rather than block the hub.
						logger.Warn("WebSocket send buffer full, dropping message", map[string]interface{}{
							"user_id": client.UserID,
						})
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// NotifyVerification broadcasts a verification decision to every connected
// dashboard. Satisfies the document service's notifier hook.
func (h *Hub) NotifyVerification(event queue.VerificationEvent) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":  "verification",
		"event": event,
	})
	if err != nil {
		logger.Error("Failed to encode verification event", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		logger.Warn("WebSocket broadcast buffer full, dropping verification event", map[string]interface{}{
			"document_id": event.DocumentID,
		})
	}
}

// ConnectedUsers returns the number of users with at least one session.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
