package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhive/internal/domain/entity"
)

func newTestPaginator(repo *fakeRepository, pageSize int) (*Paginator, *MessageCache) {
	cache := NewMessageCache(10*time.Minute, time.Minute)
	return NewPaginator(repo, cache, pageSize), cache
}

func ascending(t *testing.T, messages []*entity.Message) {
	t.Helper()
	now := time.Now()
	for i := 1; i < len(messages); i++ {
		prev, cur := messages[i-1].SortTime(now), messages[i].SortTime(now)
		assert.False(t, prev.After(cur), "messages must be ascending at index %d", i)
	}
}

func TestLoadInitialEmptyConversation(t *testing.T) {
	repo := newFakeRepository()
	paginator, _ := newTestPaginator(repo, 50)
	conv := entity.TaskConversation("t1")

	window, err := paginator.LoadInitial(context.Background(), conv)
	require.NoError(t, err)
	assert.Empty(t, window.Messages)
	assert.False(t, window.HasMore)
	assert.False(t, window.FromCache)
}

func TestLoadInitialReturnsNewestPageAscending(t *testing.T) {
	repo := newFakeRepository()
	paginator, _ := newTestPaginator(repo, 50)
	conv := entity.TaskConversation("t1")
	repo.seed(conv, 120)

	window, err := paginator.LoadInitial(context.Background(), conv)
	require.NoError(t, err)
	require.Len(t, window.Messages, 50)
	assert.True(t, window.HasMore)
	ascending(t, window.Messages)

	// Newest page: the last seeded message must close the window.
	assert.Equal(t, "message 119", window.Messages[49].Text)
	assert.Equal(t, "message 70", window.Messages[0].Text)
}

func TestLoadInitialServedFromCache(t *testing.T) {
	repo := newFakeRepository()
	paginator, cache := newTestPaginator(repo, 50)
	conv := entity.TaskConversation("t1")
	repo.seed(conv, 10)

	first, err := paginator.LoadInitial(context.Background(), conv)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	cache.UpdateScrollPosition(conv.Key(), 250)

	second, err := paginator.LoadInitial(context.Background(), conv)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Len(t, second.Messages, 10)
	assert.Equal(t, 250.0, second.ScrollOffset)
	assert.Equal(t, 1, repo.fetchCalls, "cache hit must not touch the store")
}

func TestLoadMoreBypassesCache(t *testing.T) {
	repo := newFakeRepository()
	paginator, _ := newTestPaginator(repo, 50)
	conv := entity.TaskConversation("t1")
	repo.seed(conv, 120)

	window, err := paginator.LoadInitial(context.Background(), conv)
	require.NoError(t, err)

	older, err := paginator.LoadMore(context.Background(), conv, window.Cursor)
	require.NoError(t, err)
	require.Len(t, older.Messages, 50)
	assert.True(t, older.HasMore)
	ascending(t, older.Messages)
	assert.Equal(t, 2, repo.fetchCalls)

	last, err := paginator.LoadMore(context.Background(), conv, older.Cursor)
	require.NoError(t, err)
	require.Len(t, last.Messages, 20)
	assert.False(t, last.HasMore)
}

func TestLoadInFlightGuardIsPerConversation(t *testing.T) {
	repo := newFakeRepository()
	repo.fetchGate = make(chan struct{})
	paginator, _ := newTestPaginator(repo, 50)
	conv := entity.TaskConversation("t1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := paginator.LoadInitial(context.Background(), conv)
		assert.NoError(t, err)
	}()

	// Wait for the first load to claim the in-flight flag.
	require.Eventually(t, func() bool {
		paginator.mu.Lock()
		defer paginator.mu.Unlock()
		return paginator.inFlight[conv.Key()]
	}, time.Second, time.Millisecond)

	_, err := paginator.LoadInitial(context.Background(), conv)
	assert.ErrorIs(t, err, ErrLoadInFlight)

	// A different conversation is unaffected.
	other := entity.TeamConversation("team-9")
	done := make(chan error, 1)
	go func() {
		_, err := paginator.LoadInitial(context.Background(), other)
		done <- err
	}()

	close(repo.fetchGate)
	wg.Wait()
	require.NoError(t, <-done)
}
