package router

import (
	"github.com/labstack/echo/v4"

	"taskhive/internal/adapter/api/handler"
	"taskhive/internal/adapter/api/middleware"
)

// SetupChatRouter wires the conversation endpoints. Kind is one of
// task|team|assistant; an assistant conversation id is the caller's own uid.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	conv := e.Group("/v1/conversations/:kind/:id")
	conv.Use(authMiddleware.Authenticate)

	conv.GET("/messages", chatHandler.OpenConversation)        // open + initial window
	conv.GET("/messages/older", chatHandler.LoadOlder)         // paginate backwards
	conv.POST("/messages", chatHandler.SendMessage)            // optimistic send
	conv.POST("/messages/:messageId/retry", chatHandler.RetryMessage)
	conv.PUT("/messages/:messageId", chatHandler.EditMessage)
	conv.DELETE("/messages/:messageId", chatHandler.DeleteMessage)
	conv.POST("/messages/:messageId/reactions", chatHandler.ToggleReaction)

	conv.PUT("/read", chatHandler.MarkRead)
	conv.PUT("/scroll", chatHandler.UpdateScroll)
	conv.DELETE("/session", chatHandler.CloseConversation)
}
