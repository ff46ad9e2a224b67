package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(sec int) *time.Time {
	t := time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
	return &t
}

func TestKeyPrefersStoreID(t *testing.T) {
	m := &Message{ID: "srv-1", ClientID: "c-1"}
	assert.Equal(t, "srv-1", m.Key())

	pending := &Message{ClientID: "c-2"}
	assert.Equal(t, "c-2", pending.Key())
}

func TestSortTimePendingIsNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, now, (&Message{}).SortTime(now))
	assert.Equal(t, *ts(5), (&Message{Timestamp: ts(5)}).SortTime(now))
}

func TestSortAscendingPendingFloatsToEnd(t *testing.T) {
	messages := []*Message{
		{ClientID: "pending", Text: "unacked"},
		{ID: "b", Timestamp: ts(10)},
		{ID: "a", Timestamp: ts(5)},
	}
	SortAscending(messages)

	assert.Equal(t, "a", messages[0].ID)
	assert.Equal(t, "b", messages[1].ID)
	assert.Equal(t, "pending", messages[2].ClientID)
}

func TestSortAscendingIsDeterministicOnTies(t *testing.T) {
	build := func() []*Message {
		return []*Message{
			{ID: "c", Timestamp: ts(1)},
			{ID: "a", Timestamp: ts(1)},
			{ID: "b", Timestamp: ts(1)},
		}
	}

	first := build()
	SortAscending(first)
	second := build()
	SortAscending(second)
	SortAscending(second) // repeated sorts must not reshuffle

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.Equal(t, "a", first[0].ID)
}

func TestCloneDoesNotAlias(t *testing.T) {
	original := &Message{
		ID:        "srv-1",
		Timestamp: ts(1),
		ReadBy:    []string{"u1"},
		Reactions: []Reaction{{Emoji: "👍", UserIDs: []string{"u1"}, Count: 1}},
		ReplyTo:   &ReplyRef{MessageID: "srv-0"},
	}

	cp := original.Clone()
	cp.ReadBy[0] = "someone-else"
	cp.Reactions[0].UserIDs[0] = "someone-else"
	*cp.Timestamp = cp.Timestamp.Add(time.Hour)
	cp.ReplyTo.MessageID = "elsewhere"

	assert.Equal(t, "u1", original.ReadBy[0])
	assert.Equal(t, "u1", original.Reactions[0].UserIDs[0])
	assert.Equal(t, *ts(1), *original.Timestamp)
	assert.Equal(t, "srv-0", original.ReplyTo.MessageID)
}

func TestToggleReactionAddAndRemove(t *testing.T) {
	added := ToggleReaction(nil, "👍", "u1")
	require.Len(t, added, 1)
	assert.Equal(t, []string{"u1"}, added[0].UserIDs)
	assert.Equal(t, 1, added[0].Count)

	joined := ToggleReaction(added, "👍", "u2")
	require.Len(t, joined, 1)
	assert.Equal(t, []string{"u1", "u2"}, joined[0].UserIDs)
	assert.Equal(t, 2, joined[0].Count)

	left := ToggleReaction(joined, "👍", "u1")
	require.Len(t, left, 1)
	assert.Equal(t, []string{"u2"}, left[0].UserIDs)
	assert.Equal(t, 1, left[0].Count)
}

func TestToggleReactionDropsEmptyEntry(t *testing.T) {
	one := ToggleReaction(nil, "🎉", "u1")
	none := ToggleReaction(one, "🎉", "u1")
	assert.Empty(t, none, "an entry with no users is removed, not kept empty")
}

func TestToggleReactionDoubleToggleRestoresOriginal(t *testing.T) {
	original := []Reaction{
		{Emoji: "👍", UserIDs: []string{"u2"}, Count: 1},
		{Emoji: "🎉", UserIDs: []string{"u2", "u3"}, Count: 2},
	}

	once := ToggleReaction(original, "👍", "u1")
	twice := ToggleReaction(once, "👍", "u1")
	assert.Equal(t, original, twice)
}

func TestToggleReactionDoesNotMutateInput(t *testing.T) {
	original := []Reaction{{Emoji: "👍", UserIDs: []string{"u2"}, Count: 1}}
	_ = ToggleReaction(original, "👍", "u1")

	assert.Equal(t, []string{"u2"}, original[0].UserIDs)
	assert.Equal(t, 1, original[0].Count)
}

func TestToggleReactionLeavesOtherEmojisAlone(t *testing.T) {
	original := []Reaction{{Emoji: "🎉", UserIDs: []string{"u2"}, Count: 1}}
	out := ToggleReaction(original, "👍", "u1")

	require.Len(t, out, 2)
	assert.Equal(t, "🎉", out[0].Emoji)
	assert.Equal(t, "👍", out[1].Emoji)
}
