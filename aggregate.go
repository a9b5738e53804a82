package progression

import "github.com/google/uuid"

// Aggregate is the in-memory state of one event stream. Apply folds a single
// historical event into the state and must not perform I/O.
type Aggregate interface {
	Apply(event Event) error
}

// AggregateType names an aggregate and knows how to construct an empty
// instance for a stream.
type AggregateType[A Aggregate] struct {
	Name string
	New  func(id uuid.UUID) A
}

// Applier applies one event if it has the type the applier handles.
type Applier func(event Event) (handled bool)

// On returns an Applier for events of type E.
//
// Example:
//
//	func (h *Hearing) Apply(ev progression.Event) error {
//		return progression.ApplyWith(ev,
//			progression.On(h.onListed),
//			progression.On(h.onResulted),
//		)
//	}
func On[E Event](fn func(E)) Applier {
	return func(event Event) bool {
		e, ok := event.(E)
		if !ok {
			return false
		}
		fn(e)
		return true
	}
}

// ApplyWith applies event with the first matching applier. It returns an
// *UnknownEventError when none matches.
func ApplyWith(event Event, appliers ...Applier) error {
	for _, apply := range appliers {
		if apply(event) {
			return nil
		}
	}
	return &UnknownEventError{Event: event}
}
