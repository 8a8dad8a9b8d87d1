package realtime

import (
	"context"
	"log/slog"
	"sync"
)

type Handler func(Change)

type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is a no-op.
	Unsubscribe() error
}

// Bus delivers published changes to every subscription whose filter matches.
// The channel name only labels the subscription.
type Bus interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(channel string, f Filter, h Handler) (Subscription, error)
	Close() error
}

// LocalBus is an in-process Bus. Handlers run on the publisher's goroutine
// and must not block.
type LocalBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*localSubscription
	logger *slog.Logger
}

type localSubscription struct {
	id      uint64
	bus     *LocalBus
	channel string
	filter  Filter
	handler Handler
	once    sync.Once
}

func NewLocalBus(logger *slog.Logger) *LocalBus {
	return &LocalBus{subs: make(map[uint64]*localSubscription), logger: logger}
}

func (b *LocalBus) Publish(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	matched := make([]*localSubscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter.Matches(c) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		s.handler(c)
	}
	return nil
}

func (b *LocalBus) Subscribe(channel string, f Filter, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &localSubscription{id: b.nextID, bus: b, channel: channel, filter: f, handler: h}
	b.subs[s.id] = s
	b.logger.Debug("bus subscription opened", slog.String("channel", channel), slog.Int("active", len(b.subs)))
	return s, nil
}

// Active reports the number of open subscriptions.
func (b *LocalBus) Active() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[uint64]*localSubscription)
	return nil
}

func (s *localSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		active := len(s.bus.subs)
		s.bus.mu.Unlock()
		s.bus.logger.Debug("bus subscription closed", slog.String("channel", s.channel), slog.Int("active", active))
	})
	return nil
}
