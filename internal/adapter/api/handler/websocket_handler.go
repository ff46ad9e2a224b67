package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"taskhive/internal/adapter/api/middleware"
	"taskhive/internal/chat"
	ws "taskhive/internal/infrastructure/websocket"
	"taskhive/pkg/errors"
)

type WebSocketHandler struct {
	hub            *ws.Hub
	manager        *chat.Manager
	authMiddleware *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // You should restrict this in production
	},
}

func NewWebSocketHandler(hub *ws.Hub, manager *chat.Manager, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		manager:        manager,
		authMiddleware: authMiddleware,
	}
}

// HandleWebSocket upgrades the connection and binds it to the caller's chat
// signals. Browsers cannot set headers on the upgrade request, so the token
// arrives as a query parameter.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	userID, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	h.hub.Register <- client

	// A dropped socket tears down the user's sessions so no listener keeps
	// streaming into the void.
	go client.ReadPump(h.hub, func() {
		h.manager.CloseAll(userID)
	})
	go client.WritePump()

	return nil
}
