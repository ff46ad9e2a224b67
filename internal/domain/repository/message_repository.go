package repository

import (
	"context"

	"taskhive/internal/domain/entity"
)

// Cursor is an opaque pagination token marking the last document of the most
// recently fetched page. Callers hold it and pass it back; only the store
// adapter knows its concrete type.
type Cursor interface{}

type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	}
	return "unknown"
}

type Change struct {
	Kind    ChangeKind
	Message *entity.Message
}

// Snapshot is one delivery from a conversation's change stream. First is true
// only for the catch-up snapshot: the initial full state delivered right after
// subscribing, which may overlap historical data the caller already loaded.
type Snapshot struct {
	Changes []Change
	First   bool
}

// MessageRepository is the document-store boundary for conversation messages.
// FetchPage returns up to pageSize messages ordered newest-first, plus the
// cursor for the next page. Listen attaches a change stream and returns a stop
// function; after onError fires the stream is dead and must be re-attached by
// the caller.
type MessageRepository interface {
	FetchPage(ctx context.Context, conv entity.Conversation, pageSize int, after Cursor) ([]*entity.Message, Cursor, error)
	Listen(ctx context.Context, conv entity.Conversation, onSnapshot func(Snapshot), onError func(error)) (func(), error)

	Create(ctx context.Context, conv entity.Conversation, message *entity.Message) (string, error)
	UpdateBody(ctx context.Context, conv entity.Conversation, messageID, text string) error
	SetReactions(ctx context.Context, conv entity.Conversation, messageID string, reactions []entity.Reaction) error
	AddReadReceipt(ctx context.Context, conv entity.Conversation, messageID, userID string) error
	Delete(ctx context.Context, conv entity.Conversation, messageID string) error
}
