package repository

import (
	"context"

	"cloud.google.com/go/firestore"

	"taskhive/internal/domain/entity"
	"taskhive/internal/domain/service"
	"taskhive/pkg/logger"
)

type firestoreActivityNotifier struct {
	client *firestore.Client
}

// NewFirestoreActivityNotifier marks activity on the entity owning a
// conversation. Other features (activity feeds, digests) read the marker; the
// message path only writes it, fire-and-forget.
func NewFirestoreActivityNotifier(client *firestore.Client) service.ActivityNotifier {
	return &firestoreActivityNotifier{client: client}
}

func (n *firestoreActivityNotifier) TouchActivity(ctx context.Context, conv entity.Conversation) {
	_, err := n.client.Doc(conv.DocPath()).Set(ctx, map[string]interface{}{
		"lastActivityAt": firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		logger.Warn("activity touch for %s failed: %v", conv.Key(), err)
	}
}
