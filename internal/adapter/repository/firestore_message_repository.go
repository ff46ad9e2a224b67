package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"taskhive/internal/domain/entity"
	"taskhive/internal/domain/repository"
	"taskhive/pkg/crypto"
	"taskhive/pkg/errors"
	"taskhive/pkg/logger"
	"taskhive/pkg/metrics"
)

type firestoreMessageRepository struct {
	client *firestore.Client
	cipher crypto.Cipher
}

func NewFirestoreMessageRepository(client *firestore.Client, cipher crypto.Cipher) repository.MessageRepository {
	if cipher == nil {
		cipher = crypto.NoopCipher{}
	}
	return &firestoreMessageRepository{
		client: client,
		cipher: cipher,
	}
}

func (r *firestoreMessageRepository) messages(conv entity.Conversation) *firestore.CollectionRef {
	return r.client.Collection(conv.MessagesPath())
}

func (r *firestoreMessageRepository) FetchPage(ctx context.Context, conv entity.Conversation, pageSize int, after repository.Cursor) ([]*entity.Message, repository.Cursor, error) {
	query := r.messages(conv).Query.OrderBy("timestamp", firestore.Desc).Limit(pageSize)

	if after != nil {
		snap, ok := after.(*firestore.DocumentSnapshot)
		if !ok {
			return nil, nil, errors.BadRequest("Invalid pagination cursor", nil)
		}
		query = query.StartAfter(snap)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	var last *firestore.DocumentSnapshot

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("firestore page fetch for %s failed: %v", conv.Key(), err)
			return nil, nil, errors.Internal("Failed to fetch messages", err)
		}

		last = doc
		message, err := r.decode(conv, doc)
		if err != nil {
			// Malformed documents are quarantined, never propagated.
			metrics.QuarantinedDocs.Inc()
			logger.Warn("skipping malformed message %s in %s: %v", doc.Ref.ID, conv.Key(), err)
			continue
		}
		messages = append(messages, message)
	}

	if last == nil {
		return messages, after, nil
	}
	return messages, last, nil
}

func (r *firestoreMessageRepository) Listen(ctx context.Context, conv entity.Conversation, onSnapshot func(repository.Snapshot), onError func(error)) (func(), error) {
	// No limit: the stream must observe every change, not just the newest N.
	query := r.messages(conv).Query.OrderBy("timestamp", firestore.Desc)

	lctx, cancel := context.WithCancel(ctx)
	snapshots := query.Snapshots(lctx)

	go func() {
		first := true
		for {
			snap, err := snapshots.Next()
			if err != nil {
				if lctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				onError(err)
				return
			}

			changes := make([]repository.Change, 0, len(snap.Changes))
			for _, dc := range snap.Changes {
				change, ok := r.decodeChange(conv, dc)
				if !ok {
					continue
				}
				changes = append(changes, change)
			}

			onSnapshot(repository.Snapshot{Changes: changes, First: first})
			first = false
		}
	}()

	stop := func() {
		cancel()
		snapshots.Stop()
	}
	return stop, nil
}

func (r *firestoreMessageRepository) decodeChange(conv entity.Conversation, dc firestore.DocumentChange) (repository.Change, bool) {
	var kind repository.ChangeKind
	switch dc.Kind {
	case firestore.DocumentAdded:
		kind = repository.ChangeAdded
	case firestore.DocumentModified:
		kind = repository.ChangeModified
	case firestore.DocumentRemoved:
		kind = repository.ChangeRemoved
	default:
		return repository.Change{}, false
	}

	// Removals only need the identity; the document body may already be gone.
	if kind == repository.ChangeRemoved {
		return repository.Change{Kind: kind, Message: &entity.Message{ID: dc.Doc.Ref.ID}}, true
	}

	message, err := r.decode(conv, dc.Doc)
	if err != nil {
		metrics.QuarantinedDocs.Inc()
		logger.Warn("skipping malformed %s change for %s in %s: %v", kind, dc.Doc.Ref.ID, conv.Key(), err)
		return repository.Change{}, false
	}
	return repository.Change{Kind: kind, Message: message}, true
}

// decode is the schema boundary: every document is validated and defaulted
// into the canonical Message before it enters the pipeline.
func (r *firestoreMessageRepository) decode(conv entity.Conversation, doc *firestore.DocumentSnapshot) (*entity.Message, error) {
	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	message.ID = doc.Ref.ID
	message.Pending = false
	message.SendFailed = false

	if message.SenderID == "" {
		return nil, fmt.Errorf("document has no sender")
	}
	if message.Text == "" && message.EncryptedPayload == "" && len(message.Attachments) == 0 {
		return nil, fmt.Errorf("document has no body")
	}
	if message.ReadBy == nil {
		message.ReadBy = []string{}
	}

	// Counts are derived state; recompute instead of trusting the document,
	// and drop entries left with no users.
	if len(message.Reactions) > 0 {
		reactions := message.Reactions[:0]
		for _, reaction := range message.Reactions {
			if len(reaction.UserIDs) == 0 {
				continue
			}
			reaction.Count = len(reaction.UserIDs)
			reactions = append(reactions, reaction)
		}
		message.Reactions = reactions
	}

	if message.EncryptedPayload != "" {
		plain, err := r.cipher.Decrypt(message.EncryptedPayload)
		if err != nil {
			// Recovered locally: the opaque payload stays visible instead of
			// the message being dropped or the error thrown upward.
			logger.Warn("decrypt failed for message %s in %s: %v", message.ID, conv.Key(), err)
		} else {
			message.Text = plain
			message.EncryptedPayload = ""
		}
	}

	return &message, nil
}

func (r *firestoreMessageRepository) Create(ctx context.Context, conv entity.Conversation, message *entity.Message) (string, error) {
	record := message.Clone()
	if conv.Encrypted() && record.Text != "" {
		payload, err := r.cipher.Encrypt(record.Text)
		if err != nil {
			return "", errors.Internal("Failed to encrypt message", err)
		}
		record.EncryptedPayload = payload
		record.Text = ""
	}

	ref, _, err := r.messages(conv).Add(ctx, record)
	if err != nil {
		return "", errors.Internal("Failed to create message", err)
	}
	return ref.ID, nil
}

func (r *firestoreMessageRepository) UpdateBody(ctx context.Context, conv entity.Conversation, messageID, text string) error {
	updates := []firestore.Update{
		{Path: "editedAt", Value: firestore.ServerTimestamp},
	}

	if conv.Encrypted() {
		payload, err := r.cipher.Encrypt(text)
		if err != nil {
			return errors.Internal("Failed to encrypt message", err)
		}
		updates = append(updates,
			firestore.Update{Path: "encryptedPayload", Value: payload},
			firestore.Update{Path: "text", Value: firestore.Delete},
		)
	} else {
		updates = append(updates, firestore.Update{Path: "text", Value: text})
	}

	if _, err := r.messages(conv).Doc(messageID).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to update message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) SetReactions(ctx context.Context, conv entity.Conversation, messageID string, reactions []entity.Reaction) error {
	_, err := r.messages(conv).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "reactions", Value: reactions},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to update reactions", err)
	}
	return nil
}

func (r *firestoreMessageRepository) AddReadReceipt(ctx context.Context, conv entity.Conversation, messageID, userID string) error {
	_, err := r.messages(conv).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "readBy", Value: firestore.ArrayUnion(userID)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// Old or already-deleted message; a receipt for it is meaningless.
			return nil
		}
		return errors.Internal("Failed to record read receipt", err)
	}
	return nil
}

func (r *firestoreMessageRepository) Delete(ctx context.Context, conv entity.Conversation, messageID string) error {
	_, err := r.messages(conv).Doc(messageID).Delete(ctx)
	if err != nil {
		return errors.Internal("Failed to delete message", err)
	}
	return nil
}
