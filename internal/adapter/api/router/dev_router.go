package router

import (
	"github.com/labstack/echo/v4"

	"taskhive/internal/adapter/api/handler"
)

func SetupDevRouter(e *echo.Echo, environment string, devTokenHandler *handler.DevTokenHandler) {
	if environment != "development" {
		return
	}

	e.POST("/_dev/token", devTokenHandler.GenerateToken)
}
