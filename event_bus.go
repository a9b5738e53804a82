package progression

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventPublisher hands committed envelopes to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, events []Envelope) error
}

// SubscriberOption configures a subscription. Each EventBus implementation
// documents the options it accepts.
type SubscriberOption func(cfg any)

// EventBus delivers committed events to named subscribers. Delivery is at
// most once per subscriber and in commit order.
type EventBus interface {
	// Subscribe registers handler under name until ctx is done or the bus is
	// closed. Names are unique per bus.
	Subscribe(ctx context.Context, name string, handler EventHandler, opts ...SubscriberOption) error

	// Errors returns a channel where asynchronous handling errors are sent.
	Errors() <-chan error

	// Close stops every subscription and waits for the handlers to return.
	Close() error
}

// WithPublishing publishes the events of every command that appended some.
//
// The events are committed before they are published, so a publishing
// failure does not undo the command: the successful result is returned
// together with an error matching ErrPublish.
func WithPublishing[P any](next CommandHandler[P], publisher EventPublisher) CommandHandler[P] {
	return func(ctx context.Context, cmd Command[P]) (AppendResult, error) {
		result, err := next(ctx, cmd)
		if err != nil || result.Outcome != Appended || len(result.Events) == 0 {
			return result, err
		}
		if err := publisher.Publish(ctx, result.Events); err != nil {
			return result, fmt.Errorf("%w: %w", ErrPublish, err)
		}
		return result, nil
	}
}

// Publishing is WithPublishing as router middleware.
func Publishing(publisher EventPublisher) Middleware {
	return func(next CommandHandler[json.RawMessage]) CommandHandler[json.RawMessage] {
		return WithPublishing(next, publisher)
	}
}
