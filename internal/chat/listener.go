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

type ListenerState int

const (
	StateUnsubscribed ListenerState = iota
	StateSubscribing
	StateActive
	StateReconnecting
	StateFailed
)

func (s ListenerState) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type ListenerConfig struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxRetries  int
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
		MaxRetries:  5,
	}
}

// Listener keeps one conversation's change stream attached, reconnecting with
// exponential backoff on transient errors. Exhausting the retry budget is
// terminal: onDown fires and the conversation stays without live updates
// until the caller resubscribes.
type Listener struct {
	repo       repository.MessageRepository
	conv       entity.Conversation
	cfg        ListenerConfig
	onSnapshot func(repository.Snapshot)
	onDown     func(error)

	mu       sync.Mutex
	state    ListenerState
	attempts int
	stop     func()
	timer    *time.Timer
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewListener(repo repository.MessageRepository, conv entity.Conversation, cfg ListenerConfig, onSnapshot func(repository.Snapshot), onDown func(error)) *Listener {
	if cfg.BaseBackoff <= 0 {
		cfg = DefaultListenerConfig()
	}
	return &Listener{
		repo:       repo,
		conv:       conv,
		cfg:        cfg,
		onSnapshot: onSnapshot,
		onDown:     onDown,
		state:      StateUnsubscribed,
	}
}

// Start attaches the change stream. Restarting after Stop or a terminal
// failure resets the retry budget.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.state != StateUnsubscribed && l.state != StateFailed {
		l.mu.Unlock()
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.attempts = 0
	l.mu.Unlock()

	l.subscribe()
}

// Stop detaches the stream and cancels any pending reconnection.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.stop != nil {
		l.stop()
		l.stop = nil
	}
	l.state = StateUnsubscribed
	l.attempts = 0
}

func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) subscribe() {
	l.mu.Lock()
	if l.ctx == nil || l.ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	l.state = StateSubscribing
	ctx := l.ctx
	l.mu.Unlock()

	stop, err := l.repo.Listen(ctx, l.conv, l.deliver, l.handleError)
	if err != nil {
		l.handleError(err)
		return
	}

	l.mu.Lock()
	// An error or Stop may have landed while the attach was in flight; the
	// reconnect path owns the state then and this stream is already stale.
	if l.state != StateSubscribing || ctx.Err() != nil {
		l.mu.Unlock()
		stop()
		return
	}
	l.stop = stop
	l.state = StateActive
	l.mu.Unlock()
	logger.Debug("listener active for %s", l.conv.Key())
}

// deliver forwards a snapshot and treats it as proof the stream is healthy,
// resetting the backoff counter.
func (l *Listener) deliver(snap repository.Snapshot) {
	l.mu.Lock()
	l.attempts = 0
	l.mu.Unlock()
	l.onSnapshot(snap)
}

func (l *Listener) handleError(err error) {
	l.mu.Lock()

	if l.ctx == nil || l.ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	if l.stop != nil {
		l.stop()
		l.stop = nil
	}

	l.attempts++
	if l.attempts > l.cfg.MaxRetries {
		l.state = StateFailed
		l.mu.Unlock()
		metrics.ListenerFailures.Inc()
		logger.Error("listener for %s gave up after %d attempts: %v", l.conv.Key(), l.cfg.MaxRetries, err)
		l.onDown(err)
		return
	}

	delay := l.backoff(l.attempts)
	l.state = StateReconnecting
	l.timer = time.AfterFunc(delay, l.subscribe)
	l.mu.Unlock()

	metrics.ListenerReconnects.Inc()
	logger.Warn("listener for %s lost (%v), reconnecting in %s (attempt %d/%d)",
		l.conv.Key(), err, delay, l.attempts, l.cfg.MaxRetries)
}

// backoff returns the delay before attempt n: base doubled per attempt,
// capped at MaxBackoff.
func (l *Listener) backoff(attempt int) time.Duration {
	delay := l.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= l.cfg.MaxBackoff {
			return l.cfg.MaxBackoff
		}
	}
	if delay > l.cfg.MaxBackoff {
		delay = l.cfg.MaxBackoff
	}
	return delay
}
