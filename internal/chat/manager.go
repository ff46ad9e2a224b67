package chat

import (
	"context"
	"sync"

	"taskhive/internal/domain/entity"
	"taskhive/internal/domain/repository"
	"taskhive/internal/domain/service"
)

// Manager owns the live sessions, one per (user, conversation). It guarantees
// the switch ordering: a user's previous session is fully torn down before a
// new one is opened, so a listener is never left attached to a conversation
// the user has navigated away from.
type Manager struct {
	repo        repository.MessageRepository
	cache       *MessageCache
	paginator   *Paginator
	listenerCfg ListenerConfig
	authorizer  service.Authorizer
	notifier    service.ActivityNotifier

	mu       sync.Mutex
	sessions map[string]*Session
	// active tracks each user's currently selected conversation key.
	active map[string]string
}

func NewManager(
	repo repository.MessageRepository,
	cache *MessageCache,
	pageSize int,
	listenerCfg ListenerConfig,
	authorizer service.Authorizer,
	notifier service.ActivityNotifier,
) *Manager {
	return &Manager{
		repo:        repo,
		cache:       cache,
		paginator:   NewPaginator(repo, cache, pageSize),
		listenerCfg: listenerCfg,
		authorizer:  authorizer,
		notifier:    notifier,
		sessions:    make(map[string]*Session),
		active:      make(map[string]string),
	}
}

func (m *Manager) Cache() *MessageCache { return m.cache }

// Open returns the user's session for conv, creating and starting it if
// needed. Any previously active session for the same user is closed first.
// Reopening the active conversation after a connection loss resubscribes it.
func (m *Manager) Open(ctx context.Context, userID, senderName string, conv entity.Conversation, events Events) (*Session, error) {
	key := sessionKey(userID, conv)

	m.mu.Lock()
	if prevConv, ok := m.active[userID]; ok && prevConv != conv.Key() {
		prevKey := userID + "|" + prevConv
		if prev, ok := m.sessions[prevKey]; ok {
			delete(m.sessions, prevKey)
			// Close never blocks on the network, so holding the lock keeps
			// the teardown ordered before the new session appears.
			prev.Close()
		}
	}

	if existing, ok := m.sessions[key]; ok {
		m.active[userID] = conv.Key()
		m.mu.Unlock()
		if existing.ConnectionLost() != nil {
			existing.Resubscribe(ctx)
		}
		return existing, nil
	}

	session := NewSession(conv, userID, senderName, m.repo, m.cache, m.paginator, m.listenerCfg, m.authorizer, m.notifier, events)
	m.sessions[key] = session
	m.active[userID] = conv.Key()
	m.mu.Unlock()

	if err := session.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, key)
		delete(m.active, userID)
		m.mu.Unlock()
		session.Close()
		return nil, err
	}
	return session, nil
}

// Get returns the user's session for conv without creating one.
func (m *Manager) Get(userID string, conv entity.Conversation) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(userID, conv)]
	return s, ok
}

// Close tears down the user's session for conv, if open.
func (m *Manager) Close(userID string, conv entity.Conversation) {
	key := sessionKey(userID, conv)

	m.mu.Lock()
	session, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	if m.active[userID] == conv.Key() {
		delete(m.active, userID)
	}
	m.mu.Unlock()

	if ok {
		session.Close()
	}
}

// CloseAll tears down every session for a user, e.g. when their socket drops.
func (m *Manager) CloseAll(userID string) {
	m.mu.Lock()
	var closing []*Session
	for key, session := range m.sessions {
		if session.userID == userID {
			delete(m.sessions, key)
			closing = append(closing, session)
		}
	}
	delete(m.active, userID)
	m.mu.Unlock()

	for _, session := range closing {
		session.Close()
	}
}

func sessionKey(userID string, conv entity.Conversation) string {
	return userID + "|" + conv.Key()
}
