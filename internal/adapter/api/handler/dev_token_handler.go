package handler

import (
	"github.com/labstack/echo/v4"

	"taskhive/internal/infrastructure/firebase"
	"taskhive/pkg/errors"
	"taskhive/pkg/response"
)

// DevTokenHandler mints custom tokens so local clients can authenticate
// without a real sign-in flow. Routed only in development.
type DevTokenHandler struct {
	firebaseAuth *firebase.AuthClient
}

func NewDevTokenHandler(firebaseAuth *firebase.AuthClient) *DevTokenHandler {
	return &DevTokenHandler{
		firebaseAuth: firebaseAuth,
	}
}

type devTokenRequest struct {
	UID string `json:"uid" validate:"required"`
}

func (h *DevTokenHandler) GenerateToken(c echo.Context) error {
	var req devTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	token, err := h.firebaseAuth.GenerateToken(c.Request().Context(), req.UID)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to generate token", err))
	}

	return response.Success(c, map[string]string{
		"uid":   req.UID,
		"token": token,
	})
}
