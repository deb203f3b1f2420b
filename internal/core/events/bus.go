// Package events fans deployment status events out to any number of
// subscribers.
//
// Delivery is best-effort and lossy: each subscriber owns a bounded queue,
// and when a subscriber falls behind, its oldest unread events are dropped
// to make room. Events that are delivered always arrive in publish order.
// A new subscriber first receives a synthetic EventConnected so viewers can
// request a full refresh without waiting for real activity.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/logging"
	"github.com/melih/lighthouse/internal/metrics"
)

// DefaultCapacity is the number of pending events kept per subscriber.
const DefaultCapacity = 100

// ErrClosed is returned by Next after the subscription was closed.
var ErrClosed = errors.New("events: subscription closed")

// Bus is a bounded multi-producer, multi-consumer broadcast of events. The
// zero value is not usable; construct with NewBus. Bus is safe for
// concurrent use.
type Bus struct {
	mu       sync.RWMutex
	subs     map[string]*Subscription
	capacity int
	logger   *slog.Logger
}

// NewBus returns a bus keeping up to capacity pending events per
// subscriber. A non-positive capacity means DefaultCapacity.
func NewBus(capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		subs:     make(map[string]*Subscription),
		capacity: capacity,
		logger:   logging.OrDiscard(logger),
	}
}

// Publish delivers event to every current subscriber without blocking and
// returns how many received it. With no subscribers the event is dropped.
// Publishes are serialized so every subscriber sees the same order.
func (b *Bus) Publish(event domain.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.push(event) {
			metrics.BusEventsDropped.Inc()
			b.logger.Debug("subscriber lagging, dropped oldest event", "subscription", sub.id)
		}
	}
	return len(b.subs)
}

// Subscribe attaches a new subscriber. Its first event is always
// EventConnected, followed by events published after Subscribe returns.
// Call Close when done.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		bus:    b,
		queue:  make([]domain.Event, 0, b.capacity),
		limit:  b.capacity,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	sub.push(domain.Event{Kind: domain.EventConnected})

	b.mu.Lock()
	b.subs[sub.id] = sub
	n := len(b.subs)
	b.mu.Unlock()

	metrics.BusSubscribers.Inc()
	b.logger.Debug("subscriber attached", "subscription", sub.id, "subscribers", n)
	return sub
}

// Subscribers returns the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	_, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		metrics.BusSubscribers.Dec()
		b.logger.Debug("subscriber detached", "subscription", id)
	}
}

// Subscription is one subscriber's bounded view of the bus. Next must be
// called from a single goroutine; Close may be called from any.
type Subscription struct {
	id  string
	bus *Bus

	mu      sync.Mutex
	queue   []domain.Event
	limit   int
	dropped uint64

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// ID identifies the subscription.
func (s *Subscription) ID() string { return s.id }

// push appends event, evicting the oldest pending event when full. It
// reports whether an event was evicted.
func (s *Subscription) push(event domain.Event) bool {
	s.mu.Lock()
	evicted := false
	if len(s.queue) >= s.limit {
		s.queue = s.queue[1:]
		s.dropped++
		evicted = true
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return evicted
}

// Next blocks until an event is available, ctx is done, or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (domain.Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return event, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
			return domain.Event{}, ErrClosed
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		}
	}
}

// Pending returns the number of queued, unread events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Dropped returns how many events this subscriber lost by lagging.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription. Pending events are discarded.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.remove(s.id)
		s.mu.Lock()
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}
