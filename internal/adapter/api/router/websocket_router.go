package router

import (
	"github.com/labstack/echo/v4"

	"taskhive/internal/adapter/api/handler"
)

// SetupWebSocketRouter sets up the real-time event stream endpoint. Auth is
// handled inside the handler: the token arrives as a query parameter.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
