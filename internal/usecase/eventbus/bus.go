package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"bleremote/internal/domain"
)

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscriber owns an unbounded mailbox drained by one goroutine, so a single
// subscriber sees events in publish order and a slow subscriber never blocks
// the publisher.
type subscriber struct {
	id        uint64
	eventType domain.EventType // empty for SubscribeAll
	handler   domain.EventHandler

	mu      sync.Mutex
	pending []delivery
	signal  chan struct{}
	closed  bool
	discard bool
}

func (s *subscriber) matches(t domain.EventType) bool {
	return s.eventType == "" || s.eventType == t
}

func (s *subscriber) enqueue(d delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = append(s.pending, d)
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// stop closes the mailbox. With discard set, queued events are dropped
// instead of delivered.
func (s *subscriber) stop(discard bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.discard = discard
	close(s.signal)
}

func (s *subscriber) run(logger *slog.Logger) {
	for range s.signal {
		s.drain(logger)
	}
	s.drain(logger)
}

func (s *subscriber) drain(logger *slog.Logger) {
	for {
		s.mu.Lock()
		if s.discard || len(s.pending) == 0 {
			s.pending = nil
			s.mu.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, d := range batch {
			s.deliver(logger, d)
		}
	}
}

func (s *subscriber) deliver(logger *slog.Logger, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	s.handler(d.ctx, d.event)
}

// Bus is an in-process, goroutine-safe event bus with per-subscriber ordering.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish queues the event for every matching subscriber and returns without
// waiting for handlers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.matches(event.Type) {
			sub.enqueue(delivery{ctx: ctx, event: event})
		}
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := &subscriber{
		id:        b.nextID.Add(1),
		eventType: eventType,
		handler:   handler,
		signal:    make(chan struct{}, 1),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		sub.run(b.logger)
	}()

	return func() {
		b.mu.Lock()
		for i, s := range b.subs {
			if s.id == sub.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.stop(true)
	}
}

// Close prevents new publishes and waits until every queued event has been
// handled. Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.stop(false)
	}
	b.wg.Wait()
}
