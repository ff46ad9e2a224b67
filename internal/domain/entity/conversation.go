package entity

import "fmt"

type ConversationKind string

const (
	KindTask      ConversationKind = "task"
	KindTeam      ConversationKind = "team"
	KindAssistant ConversationKind = "assistant"
)

// Conversation identifies one message stream: a task's chat, a team's chat, or
// a user's AI-assistant session. The key derived from it is deterministic, so
// any two views of the same entity share cache entries and subscriptions.
type Conversation struct {
	Kind    ConversationKind `json:"kind"`
	OwnerID string           `json:"owner_id"`
}

func TaskConversation(taskID string) Conversation {
	return Conversation{Kind: KindTask, OwnerID: taskID}
}

func TeamConversation(teamID string) Conversation {
	return Conversation{Kind: KindTeam, OwnerID: teamID}
}

func AssistantConversation(userID string) Conversation {
	return Conversation{Kind: KindAssistant, OwnerID: userID}
}

// DocPath returns the store path of the owning document.
func (c Conversation) DocPath() string {
	switch c.Kind {
	case KindTask:
		return fmt.Sprintf("tasks/%s", c.OwnerID)
	case KindTeam:
		return fmt.Sprintf("teams/%s", c.OwnerID)
	case KindAssistant:
		return fmt.Sprintf("ai_conversations/ai_%s", c.OwnerID)
	}
	return ""
}

// MessagesPath returns the store path of the conversation's message collection.
func (c Conversation) MessagesPath() string {
	return c.DocPath() + "/messages"
}

// Key is the deterministic cache and subscription key for the conversation.
func (c Conversation) Key() string {
	return c.DocPath()
}

// Encrypted reports whether message bodies in this conversation are stored
// encrypted. Assistant conversations are plain: their content is round-tripped
// through an external model anyway.
func (c Conversation) Encrypted() bool {
	return c.Kind == KindTask || c.Kind == KindTeam
}

func (c Conversation) Valid() bool {
	if c.OwnerID == "" {
		return false
	}
	switch c.Kind {
	case KindTask, KindTeam, KindAssistant:
		return true
	}
	return false
}
