package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"taskhive/internal/chat"
)

type HealthHandler struct {
	cache *chat.MessageCache
}

func NewHealthHandler(cache *chat.MessageCache) *HealthHandler {
	return &HealthHandler{
		cache: cache,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "Server is running",
		"time":           time.Now().Format(time.RFC3339),
		"cached_windows": h.cache.Len(),
	})
}
