// Package memory is an in-process EventBus fed by a publishing middleware.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	es "github.com/terraskye/progression"
)

var (
	_ es.EventBus       = (*EventBus)(nil)
	_ es.EventPublisher = (*EventBus)(nil)
)

type subscriberConfig struct {
	types map[string]struct{}
}

// WithEventTypes restricts a subscription to the named event types.
func WithEventTypes(types ...string) es.SubscriberOption {
	return func(cfg any) {
		c, ok := cfg.(*subscriberConfig)
		if !ok {
			panic(fmt.Sprintf("WithEventTypes: expected *memory.subscriberConfig, got %T", cfg))
		}
		for _, t := range types {
			c.types[t] = struct{}{}
		}
	}
}

type subscriber struct {
	name    string
	types   map[string]struct{}
	handler es.EventHandler
	events  chan es.Envelope
	cancel  context.CancelFunc
}

func (s *subscriber) accepts(env es.Envelope) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[env.Event.EventType()]
	return ok
}

// EventBus fans published envelopes out to its subscribers. Each subscriber
// has its own buffered queue and worker, so a slow subscriber delays the
// publisher only once its queue is full.
type EventBus struct {
	mu         sync.RWMutex
	subs       map[string]*subscriber
	closed     bool
	errs       chan error
	wg         sync.WaitGroup
	bufferSize int
}

// NewEventBus constructs a new bus with a given subscriber buffer size.
func NewEventBus(bufferSize int) *EventBus {
	return &EventBus{
		subs:       make(map[string]*subscriber),
		errs:       make(chan error, 64),
		bufferSize: bufferSize,
	}
}

// Subscribe accepts WithEventTypes.
func (b *EventBus) Subscribe(ctx context.Context, name string, handler es.EventHandler, opts ...es.SubscriberOption) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	cfg := &subscriberConfig{types: make(map[string]struct{})}
	for _, o := range opts {
		o(cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return es.ErrEventBusClosed
	}
	if _, exists := b.subs[name]; exists {
		return fmt.Errorf("subscriber %q already exists", name)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s := &subscriber{
		name:    name,
		types:   cfg.types,
		handler: handler,
		events:  make(chan es.Envelope, b.bufferSize),
		cancel:  cancel,
	}
	b.subs[name] = s

	b.wg.Add(1)
	go b.runSubscriber(workerCtx, s)

	go func() {
		select {
		case <-ctx.Done():
			b.removeSubscriber(name)
		case <-workerCtx.Done():
		}
	}()

	return nil
}

// Publish queues events for every subscriber that accepts them. It blocks
// while a matching subscriber's queue is full.
func (b *EventBus) Publish(ctx context.Context, events []es.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return es.ErrEventBusClosed
	}

	for _, env := range events {
		for _, s := range b.subs {
			if !s.accepts(env) {
				continue
			}
			env.Metadata = maps.Clone(env.Metadata)
			select {
			case s.events <- env:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (b *EventBus) Errors() <-chan error {
	return b.errs
}

// Close shuts down the bus and waits for all workers.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	for name, s := range b.subs {
		close(s.events)
		delete(b.subs, name)
	}
	b.mu.Unlock()

	b.wg.Wait()
	close(b.errs)
	return nil
}

// runSubscriber drains the queue of s until it is closed.
func (b *EventBus) runSubscriber(ctx context.Context, s *subscriber) {
	defer b.wg.Done()
	defer s.cancel()

	for env := range s.events {
		if err := s.handler.Handle(ctx, &env); err != nil && !errors.Is(err, es.ErrSkippedEvent) {
			select {
			case b.errs <- fmt.Errorf("subscriber %q: %w", s.name, err):
			default:
				// Drop error if channel full
			}
		}
	}
}

func (b *EventBus) removeSubscriber(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[name]
	if !ok {
		return
	}
	delete(b.subs, name)
	close(s.events)
}
