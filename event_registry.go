package progression

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

var (
	// registry maps event type names to the concrete Go type decoded for them.
	registry = map[string]reflect.Type{}

	// mu protects access to the registry for concurrent operations.
	mu sync.RWMutex
)

// RegisterEvent registers E under its EventType name so stores can decode it.
//
// Registering the same type twice is a no-op. Registering a different type
// under a name that is already taken panics.
//
// Example Usage:
//
//	RegisterEvent[HearingListed]()
func RegisterEvent[E Event]() {
	var zero E
	t := reflect.TypeOf(zero)
	if t == nil {
		panic("cannot register an interface type as an event")
	}
	name := eventTypeName(t)

	mu.Lock()
	defer mu.Unlock()

	if existing, ok := registry[name]; ok {
		if existing == t {
			return
		}
		panic(fmt.Sprintf("event already registered: %s (%s, %s)", name, existing, t))
	}
	registry[name] = t
}

// eventTypeName asks a fresh instance of t for its EventType.
func eventTypeName(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface().(Event).EventType()
	}
	return reflect.Zero(t).Interface().(Event).EventType()
}

// NewEventByName returns a pointer to a new zero value of the event type
// registered under name, ready to be decoded into.
func NewEventByName(name string) (any, error) {
	mu.RLock()
	t, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, name)
	}
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface(), nil
	}
	return reflect.New(t).Interface(), nil
}

// DecodeEvent decodes data into the event type registered under name. The
// returned Event has the exact Go type that was registered.
func DecodeEvent(name string, data []byte) (Event, error) {
	mu.RLock()
	t, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, name)
	}

	if t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())
		if err := json.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode event %q: %w", name, err)
		}
		return ptr.Interface().(Event), nil
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode event %q: %w", name, err)
	}
	return ptr.Elem().Interface().(Event), nil
}
