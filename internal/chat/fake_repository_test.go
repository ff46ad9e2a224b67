package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"taskhive/internal/domain/entity"
	"taskhive/internal/domain/repository"
)

// fakeRepository is a scripted in-memory MessageRepository. Tests control the
// stored history, inject write and subscription failures, and hand-deliver
// change-stream snapshots.
type fakeRepository struct {
	mu   sync.Mutex
	msgs map[string][]*entity.Message
	seq  int

	failCreate    bool
	failUpdate    bool
	failDelete    bool
	failReactions bool
	// listenErrs is consumed one entry per Listen call; a nil entry attaches
	// successfully.
	listenErrs []error

	fetchCalls  int
	listenCalls int
	handlers    map[string]func(repository.Snapshot)
	handlerGen  map[string]int
	fetchGate   chan struct{}
	createGate  chan struct{}
}

type fakeCursor struct {
	id string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		msgs:       make(map[string][]*entity.Message),
		handlers:   make(map[string]func(repository.Snapshot)),
		handlerGen: make(map[string]int),
	}
}

// seed stores n messages with ascending timestamps one second apart.
func (f *fakeRepository) seed(conv entity.Conversation, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		f.seq++
		ts := base.Add(time.Duration(i) * time.Second)
		f.msgs[conv.Key()] = append(f.msgs[conv.Key()], &entity.Message{
			ID:        fmt.Sprintf("srv-%03d", f.seq),
			SenderID:  "u-seed",
			Text:      fmt.Sprintf("message %d", i),
			Timestamp: &ts,
			ReadBy:    []string{"u-seed"},
		})
	}
}

func (f *fakeRepository) stored(conv entity.Conversation) []*entity.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Message, 0, len(f.msgs[conv.Key()]))
	for _, m := range f.msgs[conv.Key()] {
		out = append(out, m.Clone())
	}
	return out
}

func (f *fakeRepository) FetchPage(ctx context.Context, conv entity.Conversation, pageSize int, after repository.Cursor) ([]*entity.Message, repository.Cursor, error) {
	if f.fetchGate != nil {
		<-f.fetchGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++

	all := make([]*entity.Message, len(f.msgs[conv.Key()]))
	copy(all, f.msgs[conv.Key()])
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(*all[j].Timestamp)
	})

	start := 0
	if after != nil {
		cur, ok := after.(*fakeCursor)
		if !ok {
			return nil, nil, fmt.Errorf("bad cursor")
		}
		for i, m := range all {
			if m.ID == cur.id {
				start = i + 1
				break
			}
		}
	}

	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	page := make([]*entity.Message, 0, end-start)
	for _, m := range all[start:end] {
		page = append(page, m.Clone())
	}

	cursor := after
	if len(page) > 0 {
		cursor = &fakeCursor{id: page[len(page)-1].ID}
	}
	return page, cursor, nil
}

func (f *fakeRepository) Listen(ctx context.Context, conv entity.Conversation, onSnapshot func(repository.Snapshot), onError func(error)) (func(), error) {
	f.mu.Lock()
	f.listenCalls++
	if len(f.listenErrs) > 0 {
		err := f.listenErrs[0]
		f.listenErrs = f.listenErrs[1:]
		if err != nil {
			f.mu.Unlock()
			return nil, err
		}
	}
	key := conv.Key()
	f.handlers[key] = onSnapshot
	f.handlerGen[key]++
	gen := f.handlerGen[key]
	f.mu.Unlock()

	// The generation guard keeps a stale detach (old context, old stop
	// function) from tearing down a newer registration for the same key.
	detach := func() {
		f.mu.Lock()
		if f.handlerGen[key] == gen {
			delete(f.handlers, key)
		}
		f.mu.Unlock()
	}

	// The stream dies with its context, like the real adapter's snapshot
	// goroutine.
	go func() {
		<-ctx.Done()
		detach()
	}()

	return detach, nil
}

// emit hand-delivers a snapshot to the attached listener, if any.
func (f *fakeRepository) emit(conv entity.Conversation, snap repository.Snapshot) {
	f.mu.Lock()
	handler := f.handlers[conv.Key()]
	f.mu.Unlock()
	if handler != nil {
		handler(snap)
	}
}

func (f *fakeRepository) listening(conv entity.Conversation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[conv.Key()]
	return ok
}

func (f *fakeRepository) Create(ctx context.Context, conv entity.Conversation, message *entity.Message) (string, error) {
	if f.createGate != nil {
		<-f.createGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return "", fmt.Errorf("store rejected the write")
	}

	f.seq++
	record := message.Clone()
	record.ID = fmt.Sprintf("srv-%03d", f.seq)
	record.Pending = false
	record.SendFailed = false
	if record.Timestamp == nil {
		ts := time.Now()
		record.Timestamp = &ts
	}
	f.msgs[conv.Key()] = append(f.msgs[conv.Key()], record)
	return record.ID, nil
}

func (f *fakeRepository) UpdateBody(ctx context.Context, conv entity.Conversation, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpdate {
		return fmt.Errorf("store rejected the update")
	}
	for _, m := range f.msgs[conv.Key()] {
		if m.ID == messageID {
			m.Text = text
			return nil
		}
	}
	return fmt.Errorf("message not found")
}

func (f *fakeRepository) SetReactions(ctx context.Context, conv entity.Conversation, messageID string, reactions []entity.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failReactions {
		return fmt.Errorf("store rejected the update")
	}
	for _, m := range f.msgs[conv.Key()] {
		if m.ID == messageID {
			m.Reactions = reactions
			return nil
		}
	}
	return fmt.Errorf("message not found")
}

func (f *fakeRepository) AddReadReceipt(ctx context.Context, conv entity.Conversation, messageID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs[conv.Key()] {
		if m.ID == messageID && !m.HasRead(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return nil
}

func (f *fakeRepository) Delete(ctx context.Context, conv entity.Conversation, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failDelete {
		return fmt.Errorf("store rejected the delete")
	}
	msgs := f.msgs[conv.Key()]
	for i, m := range msgs {
		if m.ID == messageID {
			f.msgs[conv.Key()] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

// Test doubles for the session collaborators.

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) Authorize(ctx context.Context, userID string, conv entity.Conversation) bool {
	return true
}

type denyAllAuthorizer struct{}

func (denyAllAuthorizer) Authorize(ctx context.Context, userID string, conv entity.Conversation) bool {
	return false
}

type countingNotifier struct {
	mu      sync.Mutex
	touches int
}

func (n *countingNotifier) TouchActivity(ctx context.Context, conv entity.Conversation) {
	n.mu.Lock()
	n.touches++
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.touches
}

// eventRecorder captures session signals for assertions.
type eventRecorder struct {
	mu          sync.Mutex
	syncs       []string
	newMessages []*entity.Message
	prepends    [][2]float64
	lost        []error
}

func (r *eventRecorder) events() Events {
	return Events{
		OnSync: func(reason string) {
			r.mu.Lock()
			r.syncs = append(r.syncs, reason)
			r.mu.Unlock()
		},
		OnNewMessage: func(m *entity.Message) {
			r.mu.Lock()
			r.newMessages = append(r.newMessages, m)
			r.mu.Unlock()
		},
		OnPrepend: func(count int, scrollFromBottom float64) {
			r.mu.Lock()
			r.prepends = append(r.prepends, [2]float64{float64(count), scrollFromBottom})
			r.mu.Unlock()
		},
		OnConnectionLost: func(err error) {
			r.mu.Lock()
			r.lost = append(r.lost, err)
			r.mu.Unlock()
		},
	}
}

func (r *eventRecorder) newMessageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.newMessages)
}

func (r *eventRecorder) lostCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lost)
}

func (r *eventRecorder) prependCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prepends)
}
