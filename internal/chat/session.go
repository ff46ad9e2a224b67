package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskhive/internal/domain/entity"
	"taskhive/internal/domain/repository"
	"taskhive/internal/domain/service"
	"taskhive/pkg/errors"
	"taskhive/pkg/logger"
	"taskhive/pkg/metrics"
)

// Events are the signals a session raises toward the presentation layer. The
// scroll/viewport coordinator lives on the other side of these callbacks: it
// restores the visual distance from the bottom after a prepend and decides
// whether a new message should auto-scroll. All fields are optional.
type Events struct {
	OnSync           func(reason string)
	OnNewMessage     func(message *entity.Message)
	OnPrepend        func(count int, scrollFromBottom float64)
	OnConnectionLost func(err error)
}

func (e Events) sync(reason string) {
	if e.OnSync != nil {
		e.OnSync(reason)
	}
}

func (e Events) newMessage(m *entity.Message) {
	if e.OnNewMessage != nil {
		e.OnNewMessage(m)
	}
}

func (e Events) prepend(count int, scrollFromBottom float64) {
	if e.OnPrepend != nil {
		e.OnPrepend(count, scrollFromBottom)
	}
}

func (e Events) connectionLost(err error) {
	if e.OnConnectionLost != nil {
		e.OnConnectionLost(err)
	}
}

type SendInput struct {
	Text        string
	Attachments []entity.Attachment
	ReplyTo     *entity.ReplyRef
}

// Session is one user's live view of one conversation. It owns the merged
// ascending message list, folds paginated history and real-time deltas into
// it, and runs the optimistic send/edit/delete lifecycle.
//
// Store snapshots arrive on the listener's goroutine, so all list state is
// guarded by a mutex; events fire outside of it.
type Session struct {
	conv       entity.Conversation
	userID     string
	senderName string

	repo       repository.MessageRepository
	cache      *MessageCache
	paginator  *Paginator
	listener   *Listener
	authorizer service.Authorizer
	notifier   service.ActivityNotifier
	events     Events

	mu           sync.Mutex
	messages     []*entity.Message
	seen         map[string]struct{}
	cursor       repository.Cursor
	hasMore      bool
	loadingMore  bool
	scrollOffset float64
	disconnected error
	closed       bool
}

func NewSession(
	conv entity.Conversation,
	userID, senderName string,
	repo repository.MessageRepository,
	cache *MessageCache,
	paginator *Paginator,
	listenerCfg ListenerConfig,
	authorizer service.Authorizer,
	notifier service.ActivityNotifier,
	events Events,
) *Session {
	s := &Session{
		conv:       conv,
		userID:     userID,
		senderName: senderName,
		repo:       repo,
		cache:      cache,
		paginator:  paginator,
		authorizer: authorizer,
		notifier:   notifier,
		events:     events,
		seen:       make(map[string]struct{}),
	}
	s.listener = NewListener(repo, conv, listenerCfg, s.handleSnapshot, s.handleDisconnect)
	return s
}

// Start loads the initial window (cache first) and attaches the real-time
// listener. The listener attaches after the load completes; its catch-up
// snapshot covers anything written in between.
func (s *Session) Start(ctx context.Context) error {
	window, err := s.paginator.LoadInitial(ctx, s.conv)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = window.Messages
	s.cursor = window.Cursor
	s.hasMore = window.HasMore
	s.scrollOffset = window.ScrollOffset
	for _, m := range s.messages {
		s.seen[m.Key()] = struct{}{}
	}
	s.mu.Unlock()

	// The stream must outlive the opening request: its lifetime is the
	// session's, ended by Close, not by the caller's context.
	s.listener.Start(context.WithoutCancel(ctx))
	return nil
}

// Close tears the session down in the required order: persist the scroll
// offset, detach the listener, then reset the dedup state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	offset := s.scrollOffset
	s.mu.Unlock()

	s.cache.UpdateScrollPosition(s.conv.Key(), offset)
	s.listener.Stop()

	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.messages = nil
	s.mu.Unlock()
}

// Resubscribe reattaches the listener after a terminal connection loss, e.g.
// when the user reselects the conversation.
func (s *Session) Resubscribe(ctx context.Context) {
	s.mu.Lock()
	s.disconnected = nil
	s.mu.Unlock()
	s.listener.Start(context.WithoutCancel(ctx))
}

func (s *Session) Conversation() entity.Conversation { return s.conv }

// Messages returns the current list, ascending by timestamp. The slice and
// its elements are copies; callers can hold them across further mutations.
func (s *Session) Messages() []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *Session) IsLoadingMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingMore
}

func (s *Session) ScrollOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollOffset
}

// ConnectionLost reports the terminal listener error, if any.
func (s *Session) ConnectionLost() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// SetScrollOffset records the viewport position. It is written through to the
// cache without refreshing the entry's TTL.
func (s *Session) SetScrollOffset(offset float64) {
	s.mu.Lock()
	s.scrollOffset = offset
	s.mu.Unlock()
	s.cache.UpdateScrollPosition(s.conv.Key(), offset)
}

// LoadMore prepends the next older page. Calling it while a load is running,
// or when the history is exhausted, is a no-op.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.loadingMore || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	cursor := s.cursor
	scrollFromBottom := s.scrollOffset
	s.mu.Unlock()

	window, err := s.paginator.LoadMore(ctx, s.conv, cursor)

	s.mu.Lock()
	s.loadingMore = false
	if err != nil {
		s.mu.Unlock()
		if err == ErrLoadInFlight {
			return nil
		}
		return err
	}

	added := 0
	for _, m := range window.Messages {
		if _, ok := s.seen[m.Key()]; ok {
			continue
		}
		s.seen[m.Key()] = struct{}{}
		s.messages = append(s.messages, m)
		added++
	}
	s.cursor = window.Cursor
	s.hasMore = window.HasMore
	// Full re-sort rather than positional insert: batches from different
	// fetches can interleave under clock skew.
	entity.SortAscending(s.messages)
	s.mu.Unlock()

	if added > 0 {
		s.events.prepend(added, scrollFromBottom)
	}
	s.events.sync("paginate")
	return nil
}

// Send inserts an optimistic pending message and issues the store write. The
// record is visible to the caller before the network round-trip resolves; on
// failure it stays visible, flagged, for user-initiated retry.
func (s *Session) Send(ctx context.Context, input SendInput) error {
	if !s.authorizer.Authorize(ctx, s.userID, s.conv) {
		return errors.Forbidden("You are not a participant in this conversation", nil)
	}
	if input.Text == "" && len(input.Attachments) == 0 {
		return errors.BadRequest("Message must have text or an attachment", nil)
	}

	msg := &entity.Message{
		ClientID:    uuid.New().String(),
		SenderID:    s.userID,
		SenderName:  s.senderName,
		Text:        input.Text,
		Attachments: input.Attachments,
		ReplyTo:     input.ReplyTo,
		ReadBy:      []string{s.userID},
		Pending:     true,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Conflict("Conversation is closed")
	}
	s.messages = append(s.messages, msg)
	s.seen[msg.ClientID] = struct{}{}
	entity.SortAscending(s.messages)
	s.mu.Unlock()

	s.events.sync("send")
	return s.persistSend(ctx, msg.ClientID)
}

// Retry re-issues the identical write for a failed send.
func (s *Session) Retry(ctx context.Context, messageKey string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Conflict("Conversation is closed")
	}
	idx := s.indexByKey(messageKey)
	if idx < 0 {
		s.mu.Unlock()
		return errors.NotFound("Message", nil)
	}
	msg := s.messages[idx]
	if !msg.SendFailed || msg.ID != "" {
		s.mu.Unlock()
		return errors.BadRequest("Message is not awaiting retry", nil)
	}
	msg.SendFailed = false
	msg.Pending = true
	clientID := msg.ClientID
	s.mu.Unlock()

	s.events.sync("retry")
	return s.persistSend(ctx, clientID)
}

func (s *Session) persistSend(ctx context.Context, clientID string) error {
	s.mu.Lock()
	idx := s.indexByClientID(clientID)
	if idx < 0 {
		s.mu.Unlock()
		return errors.NotFound("Message", nil)
	}
	payload := s.messages[idx].Clone()
	s.mu.Unlock()

	id, err := s.repo.Create(ctx, s.conv, payload)

	s.mu.Lock()
	idx = s.indexByClientID(clientID)
	if idx < 0 {
		// Removed while the write was in flight; nothing left to reconcile.
		s.mu.Unlock()
		return nil
	}
	msg := s.messages[idx]
	if err != nil {
		msg.Pending = false
		msg.SendFailed = true
		s.mu.Unlock()

		metrics.SendFailures.Inc()
		s.events.sync("send-failed")
		return errors.Internal("Failed to send message", err)
	}

	msg.ID = id
	msg.Pending = false
	msg.SendFailed = false
	s.seen[id] = struct{}{}
	s.mu.Unlock()

	metrics.MessagesSent.Inc()
	s.cache.Invalidate(s.conv.Key())
	s.touchActivity()
	s.events.sync("send-confirmed")
	return nil
}

// Edit replaces a message's text optimistically. A failed write restores the
// previous text rather than leaving the view out of sync with the store.
func (s *Session) Edit(ctx context.Context, messageID, text string) error {
	if text == "" {
		return errors.BadRequest("Message text is required", nil)
	}

	s.mu.Lock()
	idx := s.indexByKey(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return errors.NotFound("Message", nil)
	}
	msg := s.messages[idx]
	if msg.SenderID != s.userID {
		s.mu.Unlock()
		return errors.Forbidden("Only the sender can edit a message", nil)
	}
	if msg.ID == "" {
		s.mu.Unlock()
		return errors.Conflict("Message is still pending")
	}
	priorText, priorPayload := msg.Text, msg.EncryptedPayload
	msg.Text = text
	msg.EncryptedPayload = ""
	s.mu.Unlock()

	s.events.sync("edit")

	if err := s.repo.UpdateBody(ctx, s.conv, messageID, text); err != nil {
		s.mu.Lock()
		if idx := s.indexByKey(messageID); idx >= 0 {
			s.messages[idx].Text = priorText
			s.messages[idx].EncryptedPayload = priorPayload
		}
		s.mu.Unlock()
		s.events.sync("edit-rollback")
		return errors.Internal("Failed to edit message", err)
	}

	s.cache.Invalidate(s.conv.Key())
	s.touchActivity()
	return nil
}

// Remove deletes a message optimistically. A failed store delete restores the
// record; re-sorting puts it back in its prior position.
func (s *Session) Remove(ctx context.Context, messageID string) error {
	s.mu.Lock()
	idx := s.indexByKey(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return errors.NotFound("Message", nil)
	}
	msg := s.messages[idx]
	if msg.SenderID != s.userID {
		s.mu.Unlock()
		return errors.Forbidden("Only the sender can delete a message", nil)
	}
	removed := msg
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	delete(s.seen, removed.Key())
	storeID := removed.ID
	s.mu.Unlock()

	s.events.sync("remove")

	// A message that never reached the store only needs the local removal.
	if storeID == "" {
		return nil
	}

	if err := s.repo.Delete(ctx, s.conv, storeID); err != nil {
		s.mu.Lock()
		s.messages = append(s.messages, removed)
		s.seen[removed.Key()] = struct{}{}
		entity.SortAscending(s.messages)
		s.mu.Unlock()
		s.events.sync("remove-rollback")
		return errors.Internal("Failed to delete message", err)
	}

	s.cache.Invalidate(s.conv.Key())
	s.touchActivity()
	return nil
}

// ToggleReaction adds or removes the caller's reaction. The update is a pure
// function of the previous list, applied optimistically and rolled back if
// the store write fails.
func (s *Session) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	if emoji == "" {
		return errors.BadRequest("Emoji is required", nil)
	}

	s.mu.Lock()
	idx := s.indexByKey(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return errors.NotFound("Message", nil)
	}
	msg := s.messages[idx]
	if msg.ID == "" {
		s.mu.Unlock()
		return errors.Conflict("Message is still pending")
	}
	prior := msg.Reactions
	next := entity.ToggleReaction(prior, emoji, s.userID)
	msg.Reactions = next
	s.mu.Unlock()

	s.events.sync("reaction")

	if err := s.repo.SetReactions(ctx, s.conv, messageID, next); err != nil {
		s.mu.Lock()
		if idx := s.indexByKey(messageID); idx >= 0 {
			s.messages[idx].Reactions = prior
		}
		s.mu.Unlock()
		s.events.sync("reaction-rollback")
		return errors.Internal("Failed to update reaction", err)
	}

	s.cache.Invalidate(s.conv.Key())
	return nil
}

// MarkRead acknowledges every unread message for the caller. Receipts are
// best-effort: failures are logged and the local state keeps the optimistic
// acknowledgement.
func (s *Session) MarkRead(ctx context.Context) {
	s.mu.Lock()
	var unread []string
	for _, m := range s.messages {
		if m.ID == "" || m.HasRead(s.userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, s.userID)
		unread = append(unread, m.ID)
	}
	s.mu.Unlock()

	if len(unread) == 0 {
		return
	}
	s.events.sync("read")

	for _, id := range unread {
		if err := s.repo.AddReadReceipt(ctx, s.conv, id, s.userID); err != nil {
			logger.Warn("read receipt for %s in %s failed: %v", id, s.conv.Key(), err)
		}
	}
}

// handleSnapshot folds one change-stream delivery into the list. The first
// snapshot after every (re)subscribe is the catch-up snapshot: ids the initial
// load already supplied are skipped and nothing is announced as new.
func (s *Session) handleSnapshot(snap repository.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var fresh []*entity.Message
	changed := false

	for _, change := range snap.Changes {
		m := change.Message
		switch change.Kind {
		case repository.ChangeAdded:
			if s.reconcilePending(m) {
				changed = true
				continue
			}
			if _, ok := s.seen[m.ID]; ok {
				if snap.First {
					continue
				}
				// Live re-delivery of a known id carries the authoritative
				// server state (e.g. the timestamp our own write was assigned).
				if idx := s.indexByKey(m.ID); idx >= 0 {
					s.messages[idx] = m
					changed = true
				}
				continue
			}
			s.messages = append(s.messages, m)
			s.seen[m.ID] = struct{}{}
			changed = true
			if !snap.First {
				fresh = append(fresh, m.Clone())
			}

		case repository.ChangeModified:
			if idx := s.indexByKey(m.ID); idx >= 0 {
				s.messages[idx] = m
			} else {
				s.messages = append(s.messages, m)
			}
			s.seen[m.ID] = struct{}{}
			changed = true

		case repository.ChangeRemoved:
			if idx := s.indexByKey(m.ID); idx >= 0 {
				s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
				changed = true
			}
			delete(s.seen, m.ID)
		}
	}

	if !changed {
		s.mu.Unlock()
		return
	}

	entity.SortAscending(s.messages)
	snapshotCopy := cloneMessages(s.messages)
	s.mu.Unlock()

	s.cache.UpdateMessages(s.conv.Key(), snapshotCopy)
	for _, m := range fresh {
		s.events.newMessage(m)
	}
	s.events.sync("live")
}

// reconcilePending matches a server echo against a locally pending record by
// its idempotency key, swapping in the canonical id instead of duplicating
// the message. Caller holds the lock.
func (s *Session) reconcilePending(m *entity.Message) bool {
	if m.ClientID == "" {
		return false
	}
	idx := s.indexByClientID(m.ClientID)
	if idx < 0 {
		return false
	}
	local := s.messages[idx]
	if local.ID != "" && local.ID != m.ID {
		return false
	}
	s.messages[idx] = m
	s.seen[m.ID] = struct{}{}
	return true
}

func (s *Session) handleDisconnect(err error) {
	lost := errors.Unavailable("Live updates lost; reopen the conversation to reconnect", err)
	s.mu.Lock()
	s.disconnected = lost
	s.mu.Unlock()
	s.events.connectionLost(lost)
}

func (s *Session) touchActivity() {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		defer cancel()
		s.notifier.TouchActivity(ctx, s.conv)
	}()
}

// indexByKey finds a message by store id or, for unsent messages, client id.
// Caller holds the lock.
func (s *Session) indexByKey(key string) int {
	for i, m := range s.messages {
		if (m.ID != "" && m.ID == key) || (m.ClientID != "" && m.ClientID == key) {
			return i
		}
	}
	return -1
}

func (s *Session) indexByClientID(clientID string) int {
	for i, m := range s.messages {
		if m.ClientID == clientID {
			return i
		}
	}
	return -1
}
