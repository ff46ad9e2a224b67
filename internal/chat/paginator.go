package chat

import (
	"context"
	"sync"

	"taskhive/internal/domain/entity"
	"taskhive/internal/domain/repository"
	"taskhive/pkg/errors"
	"taskhive/pkg/logger"
	"taskhive/pkg/metrics"
)

// ErrLoadInFlight is returned when a load is requested for a conversation that
// already has one running. Callers treat it as a no-op, not a failure.
var ErrLoadInFlight = errors.Conflict("a load is already in flight for this conversation")

// Window is one loaded slice of a conversation, ascending by timestamp.
type Window struct {
	Messages     []*entity.Message
	Cursor       repository.Cursor
	HasMore      bool
	ScrollOffset float64
	FromCache    bool
}

// Paginator fetches historical message batches. The initial window is served
// from the cache when possible; older pages always hit the store.
type Paginator struct {
	repo     repository.MessageRepository
	cache    *MessageCache
	pageSize int

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewPaginator(repo repository.MessageRepository, cache *MessageCache, pageSize int) *Paginator {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Paginator{
		repo:     repo,
		cache:    cache,
		pageSize: pageSize,
		inFlight: make(map[string]bool),
	}
}

func (p *Paginator) PageSize() int {
	return p.pageSize
}

// LoadInitial returns the newest window of the conversation. A cache hit
// restores messages, cursor, has-more and scroll offset without touching the
// store; a miss fetches the newest page and populates the cache.
func (p *Paginator) LoadInitial(ctx context.Context, conv entity.Conversation) (*Window, error) {
	key := conv.Key()
	if !p.begin(key) {
		return nil, ErrLoadInFlight
	}
	defer p.end(key)

	if entry := p.cache.Get(key); entry != nil {
		metrics.CacheHits.Inc()
		logger.Debug("initial window for %s served from cache (%d messages)", key, len(entry.Messages))
		return &Window{
			Messages:     entry.Messages,
			Cursor:       entry.Cursor,
			HasMore:      entry.HasMore,
			ScrollOffset: entry.ScrollOffset,
			FromCache:    true,
		}, nil
	}
	metrics.CacheMisses.Inc()

	messages, cursor, err := p.repo.FetchPage(ctx, conv, p.pageSize, nil)
	if err != nil {
		return nil, errors.Internal("Failed to load conversation messages", err)
	}

	// A short batch means the history is exhausted. A full final page is
	// indistinguishable from "more exists" and costs one extra empty fetch;
	// accepted at chat scale.
	hasMore := len(messages) == p.pageSize

	reverse(messages)
	p.cache.Set(key, messages, cursor, hasMore, 0)

	return &Window{Messages: messages, Cursor: cursor, HasMore: hasMore}, nil
}

// LoadMore fetches the page older than cursor. It always bypasses the cache:
// only the newest window is cached.
func (p *Paginator) LoadMore(ctx context.Context, conv entity.Conversation, cursor repository.Cursor) (*Window, error) {
	key := conv.Key()
	if !p.begin(key) {
		return nil, ErrLoadInFlight
	}
	defer p.end(key)

	messages, next, err := p.repo.FetchPage(ctx, conv, p.pageSize, cursor)
	if err != nil {
		return nil, errors.Internal("Failed to load older messages", err)
	}

	hasMore := len(messages) == p.pageSize
	reverse(messages)

	return &Window{Messages: messages, Cursor: next, HasMore: hasMore}, nil
}

// begin marks the conversation as loading. It reports false when a load is
// already running, making re-entrant calls no-ops. The flag is per
// conversation, not per call.
func (p *Paginator) begin(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[key] {
		return false
	}
	p.inFlight[key] = true
	return true
}

func (p *Paginator) end(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, key)
}

// reverse flips a store batch (newest first) into display order (ascending).
func reverse(messages []*entity.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
