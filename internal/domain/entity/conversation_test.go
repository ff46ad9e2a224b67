package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationPaths(t *testing.T) {
	task := TaskConversation("t-9")
	assert.Equal(t, "tasks/t-9", task.DocPath())
	assert.Equal(t, "tasks/t-9/messages", task.MessagesPath())
	assert.Equal(t, "tasks/t-9", task.Key())

	team := TeamConversation("team-4")
	assert.Equal(t, "teams/team-4", team.DocPath())

	assistant := AssistantConversation("u1")
	assert.Equal(t, "ai_conversations/ai_u1", assistant.DocPath())
	assert.Equal(t, "ai_conversations/ai_u1/messages", assistant.MessagesPath())
}

func TestConversationEncryption(t *testing.T) {
	assert.True(t, TaskConversation("t-1").Encrypted())
	assert.True(t, TeamConversation("team-1").Encrypted())
	assert.False(t, AssistantConversation("u1").Encrypted())
}

func TestConversationValid(t *testing.T) {
	assert.True(t, TaskConversation("t-1").Valid())
	assert.False(t, TaskConversation("").Valid())
	assert.False(t, Conversation{Kind: "group", OwnerID: "g-1"}.Valid())
	assert.False(t, Conversation{}.Valid())
}
