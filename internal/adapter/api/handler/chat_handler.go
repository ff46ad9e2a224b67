package handler

import (
	"github.com/labstack/echo/v4"

	"taskhive/internal/chat"
	"taskhive/internal/domain/entity"
	ws "taskhive/internal/infrastructure/websocket"
	"taskhive/pkg/errors"
	"taskhive/pkg/response"
)

type ChatHandler struct {
	manager *chat.Manager
	hub     *ws.Hub
}

func NewChatHandler(manager *chat.Manager, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{
		manager: manager,
		hub:     hub,
	}
}

type sendMessageRequest struct {
	Text        string              `json:"text"`
	Attachments []entity.Attachment `json:"attachments,omitempty" validate:"omitempty,dive"`
	ReplyTo     *entity.ReplyRef    `json:"reply_to,omitempty"`
}

type editMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

type scrollRequest struct {
	Offset float64 `json:"offset"`
}

type windowResponse struct {
	Messages       []*entity.Message `json:"messages"`
	HasMore        bool              `json:"has_more"`
	IsLoadingMore  bool              `json:"is_loading_more"`
	ScrollOffset   float64           `json:"scroll_offset"`
	ConnectionLost bool              `json:"connection_lost"`
}

// OpenConversation binds the caller to the conversation and returns the
// current window. The caller's previously active conversation is torn down
// first; reopening after a connection loss resubscribes the listener.
func (h *ChatHandler) OpenConversation(c echo.Context) error {
	conv, err := h.conversation(c)
	if err != nil {
		return response.Error(c, err)
	}
	userID := c.Get("uid").(string)

	session, err := h.manager.Open(c.Request().Context(), userID, h.senderName(c), conv, h.eventsFor(userID, conv))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, h.window(session))
}

// LoadOlder fetches the next older page into the window. A call while a load
// is in flight, or past the end of history, is a no-op.
func (h *ChatHandler) LoadOlder(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := session.LoadMore(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, h.window(session))
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := session.Send(c.Request().Context(), chat.SendInput{
		Text:        req.Text,
		Attachments: req.Attachments,
		ReplyTo:     req.ReplyTo,
	}); err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, h.window(session))
}

func (h *ChatHandler) RetryMessage(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := session.Retry(c.Request().Context(), c.Param("messageId")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, h.window(session))
}

func (h *ChatHandler) EditMessage(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := session.Edit(c.Request().Context(), c.Param("messageId"), req.Text); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, h.window(session))
}

func (h *ChatHandler) DeleteMessage(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := session.Remove(c.Request().Context(), c.Param("messageId")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, h.window(session))
}

func (h *ChatHandler) ToggleReaction(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req reactionRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := session.ToggleReaction(c.Request().Context(), c.Param("messageId"), req.Emoji); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, h.window(session))
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return response.Error(c, err)
	}

	session.MarkRead(c.Request().Context())
	return response.Success(c, map[string]bool{"read": true})
}

// UpdateScroll persists the viewport offset so a later reopen can restore the
// visual position. The cache entry's TTL is intentionally untouched.
func (h *ChatHandler) UpdateScroll(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req scrollRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}

	session.SetScrollOffset(req.Offset)
	return response.Success(c, map[string]float64{"offset": req.Offset})
}

// CloseConversation tears the caller's session down explicitly.
func (h *ChatHandler) CloseConversation(c echo.Context) error {
	conv, err := h.conversation(c)
	if err != nil {
		return response.Error(c, err)
	}

	h.manager.Close(c.Get("uid").(string), conv)
	return response.Success(c, map[string]bool{"closed": true})
}

func (h *ChatHandler) conversation(c echo.Context) (entity.Conversation, error) {
	kind := entity.ConversationKind(c.Param("kind"))
	id := c.Param("id")
	userID, _ := c.Get("uid").(string)

	conv := entity.Conversation{Kind: kind, OwnerID: id}
	if kind == entity.KindAssistant {
		// An assistant conversation belongs to exactly one user.
		if id != userID && id != "me" {
			return entity.Conversation{}, errors.Forbidden("You are not a participant in this conversation", nil)
		}
		conv = entity.AssistantConversation(userID)
	}

	if !conv.Valid() {
		return entity.Conversation{}, errors.BadRequest("Unknown conversation kind: "+c.Param("kind"), nil)
	}
	return conv, nil
}

// session resolves the caller's session for the addressed conversation,
// opening it on first touch.
func (h *ChatHandler) session(c echo.Context) (*chat.Session, error) {
	conv, err := h.conversation(c)
	if err != nil {
		return nil, err
	}
	userID := c.Get("uid").(string)

	if session, ok := h.manager.Get(userID, conv); ok {
		return session, nil
	}
	return h.manager.Open(c.Request().Context(), userID, h.senderName(c), conv, h.eventsFor(userID, conv))
}

func (h *ChatHandler) senderName(c echo.Context) string {
	if name, ok := c.Get("name").(string); ok && name != "" {
		return name
	}
	return c.Get("uid").(string)
}

func (h *ChatHandler) window(session *chat.Session) windowResponse {
	return windowResponse{
		Messages:       session.Messages(),
		HasMore:        session.HasMore(),
		IsLoadingMore:  session.IsLoadingMore(),
		ScrollOffset:   session.ScrollOffset(),
		ConnectionLost: session.ConnectionLost() != nil,
	}
}

// eventsFor routes a session's signals to the user's websocket. The scroll
// coordinator on the other end restores the distance from the bottom on
// prepend and decides auto-scroll on new messages.
func (h *ChatHandler) eventsFor(userID string, conv entity.Conversation) chat.Events {
	key := conv.Key()
	return chat.Events{
		OnSync: func(reason string) {
			h.hub.SendToUser(userID, ws.Event{
				Type:         "sync",
				Conversation: key,
				Payload:      map[string]string{"reason": reason},
			})
		},
		OnNewMessage: func(message *entity.Message) {
			h.hub.SendToUser(userID, ws.Event{
				Type:         "message:new",
				Conversation: key,
				Payload:      message,
			})
		},
		OnPrepend: func(count int, scrollFromBottom float64) {
			h.hub.SendToUser(userID, ws.Event{
				Type:         "prepend",
				Conversation: key,
				Payload: map[string]interface{}{
					"count":              count,
					"scroll_from_bottom": scrollFromBottom,
				},
			})
		},
		OnConnectionLost: func(err error) {
			h.hub.SendToUser(userID, ws.Event{
				Type:         "connection:lost",
				Conversation: key,
				Payload:      map[string]string{"reason": err.Error()},
			})
		},
	}
}
