package progression

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Middleware decorates every route of a Router.
type Middleware func(next CommandHandler[json.RawMessage]) CommandHandler[json.RawMessage]

// Router maps command names to handlers. It is the routing table transports
// dispatch raw commands through.
type Router struct {
	mu         sync.RWMutex
	routes     map[string]CommandHandler[json.RawMessage]
	middleware []Middleware
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		routes: make(map[string]CommandHandler[json.RawMessage]),
	}
}

// Handle registers handler under name. The raw payload is decoded into P
// before the handler runs.
//
// Panics if a handler is already registered under the same name.
//
// Example:
//
//	Handle(router, "progression.list-hearing", listHearing)
func Handle[P any](r *Router, name string, handler CommandHandler[P]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[name]; exists {
		panic(fmt.Sprintf("handler already registered for command %s", name))
	}

	r.routes[name] = func(ctx context.Context, raw RawCommand) (AppendResult, error) {
		var payload P
		if len(raw.Payload) == 0 {
			return AppendResult{}, fmt.Errorf("command %s: empty payload: %w", name, ErrInvalidPayload)
		}
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return AppendResult{}, fmt.Errorf("command %s: %w: %v", name, ErrInvalidPayload, err)
		}
		return handler(ctx, Command[P]{Metadata: raw.Metadata, Payload: payload})
	}
}

// Use appends middleware. The first middleware registered is the outermost.
func (r *Router) Use(middleware ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// Names returns the registered command names in sorted order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch routes cmd by its metadata name.
func (r *Router) Dispatch(ctx context.Context, cmd RawCommand) (AppendResult, error) {
	r.mu.RLock()
	h, ok := r.routes[cmd.Metadata.Name]
	middleware := r.middleware
	r.mu.RUnlock()

	if !ok {
		return AppendResult{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Metadata.Name)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h(ctx, cmd)
}
