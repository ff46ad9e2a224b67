package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"taskhive/pkg/logger"
)

// Event is one UI-facing signal: a re-render request, a live message, a
// prepend notice for the scroll coordinator, or a connection-state change.
type Event struct {
	Type         string      `json:"type"`
	Conversation string      `json:"conversation,omitempty"`
	Payload      interface{} `json:"payload,omitempty"`
}

// Client represents one connected UI (browser tab).
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub tracks connected clients and routes events to them.
type Hub struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Start runs the hub's main loop in a goroutine.
func (h *Hub) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-h.Register:
				h.mutex.Lock()
				if existing, ok := h.clients[client.UserID]; ok {
					close(existing.Send)
				}
				h.clients[client.UserID] = client
				h.mutex.Unlock()
				logger.Debug("ws client registered: %s", client.UserID)

			case client := <-h.Unregister:
				h.mutex.Lock()
				if current, ok := h.clients[client.UserID]; ok && current == client {
					delete(h.clients, client.UserID)
					close(client.Send)
				}
				h.mutex.Unlock()
				logger.Debug("ws client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// SendToUser delivers an event to a user's connected client, if any. A full
// send buffer drops the event rather than blocking the engine: the next sync
// event re-renders from the authoritative list anyway.
func (h *Hub) SendToUser(userID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("ws event marshal failed: %v", err)
		return
	}

	h.mutex.RLock()
	client, ok := h.clients[userID]
	h.mutex.RUnlock()
	if !ok {
		return
	}

	select {
	case client.Send <- data:
	default:
		logger.Warn("ws send buffer full for %s, dropping %s event", userID, event.Type)
	}
}

// Connected reports whether the user currently has a socket attached.
func (h *Hub) Connected(userID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// ReadPump drains messages from the socket until it closes. Inbound data is
// not part of the protocol; actions arrive over HTTP.
func (c *Client) ReadPump(h *Hub, onClose func()) {
	defer func() {
		h.Unregister <- c
		c.Conn.Close()
		if onClose != nil {
			onClose()
		}
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("ws read error for %s: %v", c.UserID, err)
			}
			return
		}
	}
}

// WritePump pushes queued events to the socket.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logger.Warn("ws write error for %s: %v", c.UserID, err)
			return
		}
	}
}
