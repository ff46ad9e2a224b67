package entity

import (
	"sort"
	"time"
)

type Attachment struct {
	URL         string `json:"url" firestore:"url"`
	Name        string `json:"name" firestore:"name"`
	ContentType string `json:"content_type" firestore:"contentType"`
	StoragePath string `json:"storage_path,omitempty" firestore:"storagePath,omitempty"`
}

// Reaction groups every user who reacted with the same emoji.
// Count is derived and must always equal len(UserIDs).
type Reaction struct {
	Emoji   string   `json:"emoji" firestore:"emoji"`
	UserIDs []string `json:"user_ids" firestore:"userIds"`
	Count   int      `json:"count" firestore:"count"`
}

type ReplyRef struct {
	MessageID string `json:"message_id" firestore:"messageId"`
	Snippet   string `json:"snippet,omitempty" firestore:"snippet,omitempty"`
}

type Message struct {
	ID               string       `json:"id" firestore:"-"`
	ClientID         string       `json:"client_id,omitempty" firestore:"clientId,omitempty"`
	SenderID         string       `json:"sender_id" firestore:"senderId"`
	SenderName       string       `json:"sender_name,omitempty" firestore:"senderName,omitempty"`
	Text             string       `json:"text,omitempty" firestore:"text,omitempty"`
	EncryptedPayload string       `json:"encrypted_payload,omitempty" firestore:"encryptedPayload,omitempty"`
	Timestamp        *time.Time   `json:"timestamp" firestore:"timestamp,serverTimestamp"`
	Attachments      []Attachment `json:"attachments,omitempty" firestore:"attachments,omitempty"`
	Reactions        []Reaction   `json:"reactions,omitempty" firestore:"reactions,omitempty"`
	ReadBy           []string     `json:"read_by" firestore:"readBy"`
	ReplyTo          *ReplyRef    `json:"reply_to,omitempty" firestore:"replyTo,omitempty"`

	// Transient lifecycle flags, never written to the store.
	Pending    bool `json:"pending" firestore:"-"`
	SendFailed bool `json:"send_failed" firestore:"-"`
}

// Key returns the stable identity of a message: the store id once assigned,
// otherwise the client-generated idempotency key.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ClientID
}

// SortTime returns the ordering key for display. A nil timestamp means the
// message is still pending server acknowledgement and sorts as "now", so it
// floats to the most recent position without breaking ascending order later.
func (m *Message) SortTime(now time.Time) time.Time {
	if m.Timestamp == nil {
		return now
	}
	return *m.Timestamp
}

// HasRead reports whether userID has acknowledged the message.
func (m *Message) HasRead(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so cached and displayed slices never alias.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Timestamp != nil {
		ts := *m.Timestamp
		cp.Timestamp = &ts
	}
	cp.Attachments = append([]Attachment(nil), m.Attachments...)
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	cp.Reactions = make([]Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		cp.Reactions[i] = Reaction{
			Emoji:   r.Emoji,
			UserIDs: append([]string(nil), r.UserIDs...),
			Count:   r.Count,
		}
	}
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		cp.ReplyTo = &ref
	}
	return &cp
}

// SortAscending orders messages ascending by timestamp, pending messages
// sorting as the moment of the call. The sort is stable and ties fall back to
// the message key so repeated sorts of the same data are deterministic.
func SortAscending(messages []*Message) {
	now := time.Now()
	sort.SliceStable(messages, func(i, j int) bool {
		ti, tj := messages[i].SortTime(now), messages[j].SortTime(now)
		if ti.Equal(tj) {
			return messages[i].Key() < messages[j].Key()
		}
		return ti.Before(tj)
	})
}

// ToggleReaction returns a new reaction list with userID added to or removed
// from the emoji's entry. The input is never mutated. Entries stay unique per
// emoji, a user appears at most once per entry, and an entry left with no
// users is dropped rather than kept empty.
func ToggleReaction(reactions []Reaction, emoji, userID string) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.Emoji != emoji {
			out = append(out, Reaction{
				Emoji:   r.Emoji,
				UserIDs: append([]string(nil), r.UserIDs...),
				Count:   len(r.UserIDs),
			})
			continue
		}
		found = true
		users := make([]string, 0, len(r.UserIDs)+1)
		removed := false
		for _, id := range r.UserIDs {
			if id == userID {
				removed = true
				continue
			}
			users = append(users, id)
		}
		if !removed {
			users = append(users, userID)
		}
		if len(users) == 0 {
			continue
		}
		out = append(out, Reaction{Emoji: emoji, UserIDs: users, Count: len(users)})
	}
	if !found {
		out = append(out, Reaction{Emoji: emoji, UserIDs: []string{userID}, Count: 1})
	}
	return out
}
