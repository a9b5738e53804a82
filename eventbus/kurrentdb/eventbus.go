// Package kurrentdb is an EventBus backed by $all subscriptions. KurrentDB
// publishes every committed event itself, so the bus has no Publish method.
package kurrentdb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kurrent-io/KurrentDB-Client-Go/kurrentdb"

	es "github.com/terraskye/progression"
	kstore "github.com/terraskye/progression/eventstore/kurrentdb"
)

var _ es.EventBus = (*EventBus)(nil)

type subscriber struct {
	name    string
	opt     kurrentdb.SubscribeToAllOptions
	handler es.EventHandler
	cancel  context.CancelFunc
}

// EventBus runs one $all subscription per subscriber. It does not own the
// client.
type EventBus struct {
	db     *kurrentdb.Client
	subs   map[string]*subscriber
	mu     sync.RWMutex
	closed bool
	errs   chan error
	wg     sync.WaitGroup
}

// NewEventBus creates a KurrentDB-backed event bus.
func NewEventBus(db *kurrentdb.Client) *EventBus {
	return &EventBus{
		db:   db,
		subs: make(map[string]*subscriber),
		errs: make(chan error, 64),
	}
}

// subscribeOptions returns the subscription options for opts. Subscriptions
// start at the end of $all and exclude system events unless told otherwise.
func subscribeOptions(opts ...es.SubscriberOption) kurrentdb.SubscribeToAllOptions {
	opt := kurrentdb.SubscribeToAllOptions{
		From:           kurrentdb.End{},
		ResolveLinkTos: true,
		Filter:         kurrentdb.ExcludeSystemEventsFilter(),
	}
	for _, o := range opts {
		o(&opt)
	}
	return opt
}

// Subscribe accepts WithFromStart, WithFilterEvents and WithFilterStream.
func (b *EventBus) Subscribe(ctx context.Context, name string, handler es.EventHandler, opts ...es.SubscriberOption) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return es.ErrEventBusClosed
	}
	if _, exists := b.subs[name]; exists {
		b.mu.Unlock()
		return fmt.Errorf("subscriber %q already exists", name)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{name: name, handler: handler, cancel: cancel, opt: subscribeOptions(opts...)}
	b.subs[name] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go b.runSubscriber(workerCtx, sub)

	go func() {
		select {
		case <-ctx.Done():
			b.removeSubscriber(name)
		case <-workerCtx.Done():
		}
	}()

	return nil
}

func (b *EventBus) runSubscriber(ctx context.Context, s *subscriber) {
	defer b.wg.Done()
	defer s.cancel()

	stream, err := b.db.SubscribeToAll(ctx, s.opt)
	if err != nil {
		b.report(fmt.Errorf("subscriber %q: %w", s.name, err))
		return
	}
	defer stream.Close()

	for {
		event := stream.Recv()

		if event.SubscriptionDropped != nil {
			if ctx.Err() == nil {
				b.report(fmt.Errorf("subscriber %q: dropped: %w", s.name, event.SubscriptionDropped.Error))
			}
			return
		}
		if event.EventAppeared == nil {
			continue
		}

		recorded := event.EventAppeared.OriginalEvent()
		if kstore.IsSystemEvent(recorded) {
			continue
		}
		envelope, err := kstore.Decode(recorded)
		if err != nil {
			b.report(fmt.Errorf("subscriber %q: cannot decode %q: %w", s.name, recorded.EventType, err))
			continue
		}

		if err := s.handler.Handle(ctx, envelope); err != nil && !errors.Is(err, es.ErrSkippedEvent) {
			b.report(fmt.Errorf("subscriber %q: %w", s.name, err))
		}
	}
}

func (b *EventBus) report(err error) {
	select {
	case b.errs <- err:
	default:
	}
}

func (b *EventBus) removeSubscriber(name string) {
	b.mu.Lock()
	sub, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
		sub.cancel()
	}
	b.mu.Unlock()
}

func (b *EventBus) Errors() <-chan error {
	return b.errs
}

func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	for _, sub := range b.subs {
		sub.cancel()
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
	close(b.errs)
	return nil
}

func WithFromStart() es.SubscriberOption {
	return func(cfg any) {
		opts, ok := cfg.(*kurrentdb.SubscribeToAllOptions)
		if !ok {
			panic(fmt.Sprintf("WithFromStart: expected *SubscribeToAllOptions, got %T", cfg))
		}
		opts.From = kurrentdb.Start{}
	}
}

// WithFilterEvents restricts the subscription to event types starting with
// one of prefixes.
func WithFilterEvents(prefixes ...string) es.SubscriberOption {
	return func(cfg any) {
		opts, ok := cfg.(*kurrentdb.SubscribeToAllOptions)
		if !ok {
			panic(fmt.Sprintf("WithFilterEvents: expected *SubscribeToAllOptions, got %T", cfg))
		}
		opts.Filter = &kurrentdb.SubscriptionFilter{
			Type:     kurrentdb.EventFilterType,
			Prefixes: prefixes,
		}
	}
}

// WithFilterStream restricts the subscription to streams starting with one
// of prefixes.
func WithFilterStream(prefixes ...string) es.SubscriberOption {
	return func(cfg any) {
		opts, ok := cfg.(*kurrentdb.SubscribeToAllOptions)
		if !ok {
			panic(fmt.Sprintf("WithFilterStream: expected *SubscribeToAllOptions, got %T", cfg))
		}
		opts.Filter = &kurrentdb.SubscriptionFilter{
			Type:     kurrentdb.StreamFilterType,
			Prefixes: prefixes,
		}
	}
}
