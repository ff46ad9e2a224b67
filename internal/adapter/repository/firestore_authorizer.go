package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"taskhive/internal/domain/entity"
	"taskhive/internal/domain/service"
	"taskhive/pkg/logger"
)

type firestoreAuthorizer struct {
	client *firestore.Client
}

// NewFirestoreAuthorizer answers conversation membership. Task and team
// conversations are open to ids in the owning document's participants array;
// an assistant conversation belongs to exactly one user.
func NewFirestoreAuthorizer(client *firestore.Client) service.Authorizer {
	return &firestoreAuthorizer{client: client}
}

func (a *firestoreAuthorizer) Authorize(ctx context.Context, userID string, conv entity.Conversation) bool {
	if userID == "" || !conv.Valid() {
		return false
	}
	if conv.Kind == entity.KindAssistant {
		return conv.OwnerID == userID
	}

	doc, err := a.client.Doc(conv.DocPath()).Get(ctx)
	if err != nil {
		if status.Code(err) != codes.NotFound {
			logger.Warn("authorization lookup for %s failed: %v", conv.Key(), err)
		}
		return false
	}

	participants, err := doc.DataAt("participants")
	if err != nil {
		return false
	}
	ids, ok := participants.([]interface{})
	if !ok {
		return false
	}
	for _, id := range ids {
		if s, ok := id.(string); ok && s == userID {
			return true
		}
	}
	return false
}
