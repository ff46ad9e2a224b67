package service

import (
	"context"

	"taskhive/internal/domain/entity"
)

// Authorizer answers whether a user may participate in a conversation. It is
// consulted before any send-path store write; a negative answer produces a
// fixed rejection with no store round-trip.
type Authorizer interface {
	Authorize(ctx context.Context, userID string, conv entity.Conversation) bool
}

// ActivityNotifier marks activity on the entity owning a conversation after a
// successful send, edit, or delete. Calls are fire-and-forget: implementations
// log failures and never propagate them into the message path.
type ActivityNotifier interface {
	TouchActivity(ctx context.Context, conv entity.Conversation)
}
