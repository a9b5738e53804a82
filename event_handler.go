package progression

import (
	"context"
	"fmt"
	"reflect"
	"slices"
)

// EventHandler reacts to an event that has been committed to a stream.
type EventHandler interface {
	Handle(ctx context.Context, env *Envelope) error
}

// NewEventHandlerFunc creates an EventHandler from a plain function. The
// function receives every envelope it is given, whatever its event type.
func NewEventHandlerFunc(fn func(ctx context.Context, env *Envelope) error) EventHandler {
	return eventHandlerFunc(fn)
}

type eventHandlerFunc func(ctx context.Context, env *Envelope) error

func (h eventHandlerFunc) Handle(ctx context.Context, env *Envelope) error {
	return h(ctx, env)
}

// typedEventHandler handles events of type E only.
type typedEventHandler[E Event] func(ctx context.Context, ev E) error

func (h typedEventHandler[E]) eventType() reflect.Type {
	return reflect.TypeFor[E]()
}

// Handle returns ErrSkippedEvent for events of another type. The envelope is
// available to fn through EnvelopeFromContext.
func (h typedEventHandler[E]) Handle(ctx context.Context, env *Envelope) error {
	ev, ok := env.Event.(E)
	if !ok {
		return fmt.Errorf("%T: %w", env.Event, ErrSkippedEvent)
	}
	return h(WithEnvelope(ctx, env), ev)
}

// OnEvent creates a strongly-typed EventHandler for events of type E.
//
// Example:
//
//	group := NewEventGroup(
//		OnEvent(p.OnHearingListed),
//		OnEvent(p.OnHearingResulted),
//	)
func OnEvent[E Event](fn func(ctx context.Context, ev E) error) EventHandler {
	return typedEventHandler[E](fn)
}

// EventGroup routes each envelope to the handler registered for the Go type
// of its event.
type EventGroup struct {
	handlers map[reflect.Type]EventHandler
	names    []string
}

// NewEventGroup creates a group of handlers built with OnEvent for concrete
// event types. It panics on any other handler and when two handlers share an
// event type.
func NewEventGroup(handlers ...EventHandler) *EventGroup {
	g := &EventGroup{handlers: make(map[reflect.Type]EventHandler, len(handlers))}
	for _, h := range handlers {
		typed, ok := h.(interface{ eventType() reflect.Type })
		if !ok {
			panic(fmt.Errorf("handler %T was not built with OnEvent", h))
		}
		t := typed.eventType()
		if t.Kind() == reflect.Interface {
			panic(fmt.Errorf("handler %T is not bound to a concrete event type", h))
		}
		if _, exists := g.handlers[t]; exists {
			panic(fmt.Errorf("duplicate handler for event %s", t))
		}
		g.handlers[t] = h
		if name := eventTypeName(t); name != "" {
			g.names = append(g.names, name)
		}
	}
	slices.Sort(g.names)
	return g
}

// Handle returns ErrSkippedEvent when no handler accepts the event.
func (g *EventGroup) Handle(ctx context.Context, env *Envelope) error {
	if env.Event == nil {
		return fmt.Errorf("nil event: %w", ErrSkippedEvent)
	}
	h, ok := g.handlers[reflect.TypeOf(env.Event)]
	if !ok {
		return fmt.Errorf("%s: %w", env.Event.EventType(), ErrSkippedEvent)
	}
	return h.Handle(ctx, env)
}

// EventTypes returns the sorted event type names handled by the group, for
// use as a subscription filter.
func (g *EventGroup) EventTypes() []string {
	return slices.Clone(g.names)
}
