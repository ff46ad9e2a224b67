package chat

import (
	"context"
	"sync"
	"time"

	"taskhive/internal/domain/entity"
	"taskhive/internal/domain/repository"
	"taskhive/pkg/logger"
	"taskhive/pkg/metrics"
)

// CacheEntry is the last-known window of one conversation: the messages on
// screen, the pagination cursor, the has-more flag and the scroll offset.
type CacheEntry struct {
	Messages     []*entity.Message
	Cursor       repository.Cursor
	HasMore      bool
	ScrollOffset float64
}

type cacheRecord struct {
	messages     []*entity.Message
	cursor       repository.Cursor
	hasMore      bool
	scrollOffset float64
	updatedAt    time.Time
}

// MessageCache holds recently viewed conversation windows so that reopening a
// conversation needs no store round-trip. Entries expire a fixed TTL after
// their last content update; scroll-position writes deliberately do not extend
// the TTL. There is no capacity bound: the working set is the handful of
// conversations a user has open, not the whole workspace.
type MessageCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheRecord
	ttl        time.Duration
	sweepEvery time.Duration
	now        func() time.Time
}

func NewMessageCache(ttl, sweepEvery time.Duration) *MessageCache {
	return &MessageCache{
		entries:    make(map[string]*cacheRecord),
		ttl:        ttl,
		sweepEvery: sweepEvery,
		now:        time.Now,
	}
}

// Start runs the periodic sweep until ctx is cancelled.
func (c *MessageCache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Get returns the cached window for key, or nil when absent or expired.
// An expired entry is evicted on the spot (lazy expiry).
func (c *MessageCache) Get(key string) *CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.expired(rec) {
		delete(c.entries, key)
		metrics.CacheEvictions.Inc()
		return nil
	}

	return &CacheEntry{
		Messages:     cloneMessages(rec.messages),
		Cursor:       rec.cursor,
		HasMore:      rec.hasMore,
		ScrollOffset: rec.scrollOffset,
	}
}

func (c *MessageCache) Set(key string, messages []*entity.Message, cursor repository.Cursor, hasMore bool, scrollOffset float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheRecord{
		messages:     cloneMessages(messages),
		cursor:       cursor,
		hasMore:      hasMore,
		scrollOffset: scrollOffset,
		updatedAt:    c.now(),
	}
}

// UpdateMessages replaces the cached window content and refreshes the TTL.
// A conversation whose entry has already expired is left alone: recreating it
// here would resurrect it without cursor or has-more state.
func (c *MessageCache) UpdateMessages(key string, messages []*entity.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok || c.expired(rec) {
		return
	}
	rec.messages = cloneMessages(messages)
	rec.updatedAt = c.now()
}

// UpdateScrollPosition stores the viewport offset without refreshing the TTL,
// so scrolling alone cannot keep a stale window alive indefinitely.
func (c *MessageCache) UpdateScrollPosition(key string, offset float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.entries[key]; ok {
		rec.scrollOffset = offset
	}
}

func (c *MessageCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		metrics.CacheEvictions.Inc()
	}
}

// Sweep evicts every expired entry.
func (c *MessageCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, rec := range c.entries {
		if c.expired(rec) {
			delete(c.entries, key)
			metrics.CacheEvictions.Inc()
			removed++
		}
	}
	if removed > 0 {
		logger.Debug("cache sweep removed %d expired entries", removed)
	}
}

// Len reports the number of live entries. Used by the sweep tests and the
// health endpoint.
func (c *MessageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MessageCache) expired(rec *cacheRecord) bool {
	return c.now().Sub(rec.updatedAt) >= c.ttl
}

func cloneMessages(messages []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}
