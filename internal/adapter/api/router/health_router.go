package router

import (
	"github.com/labstack/echo/v4"

	"taskhive/internal/adapter/api/handler"
	"taskhive/pkg/metrics"
)

func SetupHealthRouter(e *echo.Echo, healthHandler *handler.HealthHandler) {
	e.GET("/health", healthHandler.CheckHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}
