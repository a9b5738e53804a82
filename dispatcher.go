package progression

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
)

// CommandHandler handles one command type.
//
// Handlers return a successful AppendResult for every outcome that is not a
// failure, including commands that ended up writing nothing. Any failure is
// returned as a *DispatchError.
type CommandHandler[P any] func(ctx context.Context, cmd Command[P]) (AppendResult, error)

// Mutation invokes exactly one business method on a rehydrated aggregate,
// passing it only the payload fields it needs.
//
// A nil sequence means the command does not apply to the current state and
// nothing must be appended. A non-nil sequence, even an empty one, is handed
// to the Appender. The sequence is iterated once.
type Mutation[A Aggregate, P any] func(agg A, payload P) (iter.Seq[Event], error)

// Events adapts a list of events to the sequence type returned by
// mutations. Events() is the empty sequence, not the nil one.
func Events(events ...Event) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, e := range events {
			if !yield(e) {
				return
			}
		}
	}
}

// DispatcherOption configures a dispatcher built by NewDispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	snapshots     SnapshotCache
	snapshotEvery uint64
	userID        func(ctx context.Context, md Metadata) string
	now           func() time.Time
}

// WithSnapshots enables the snapshot cache. A snapshot is taken whenever at
// least every events had to be replayed.
func WithSnapshots(cache SnapshotCache, every uint64) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.snapshots = cache
		o.snapshotEvery = every
	}
}

// WithUserID overrides the user id recorded on appended events.
func WithUserID(fn func(ctx context.Context, md Metadata) string) DispatcherOption {
	return func(o *dispatcherOptions) { o.userID = fn }
}

// WithClock sets the clock used to stamp appended events.
func WithClock(now func() time.Time) DispatcherOption {
	return func(o *dispatcherOptions) { o.now = now }
}

// NewDispatcher returns the handler for one command type.
//
// For each command it:
//  1. Resolves the target stream id from the payload. A resolver returning
//     ErrBypassed ends the dispatch successfully before any I/O.
//  2. Opens the stream and rehydrates a fresh aggregate from its history.
//  3. Invokes the mutation once.
//  4. Skips the append when the mutation returned a nil sequence; otherwise
//     enriches the events with the command metadata and appends them at the
//     version observed in step 2.
//
// The dispatcher performs no retries. A lost optimistic concurrency race is
// reported with Kind ErrConflict so that callers can re-dispatch the whole
// command.
func NewDispatcher[A Aggregate, P any](
	store EventStore,
	aggregateType AggregateType[A],
	resolve Resolver[P],
	mutate Mutation[A, P],
	opts ...DispatcherOption,
) CommandHandler[P] {
	cfg := &dispatcherOptions{}
	for _, o := range opts {
		o(cfg)
	}

	rehydrator := Rehydrator[A]{
		Type:          aggregateType,
		Snapshots:     cfg.snapshots,
		SnapshotEvery: cfg.snapshotEvery,
	}
	appender := Appender{Now: cfg.now, UserID: cfg.userID}

	return func(ctx context.Context, cmd Command[P]) (AppendResult, error) {
		name := cmd.Metadata.Name
		if name == "" {
			name = fmt.Sprintf("%T", cmd.Payload)
		}
		fail := func(kind error, stream uuid.UUID, err error) (AppendResult, error) {
			result := AppendResult{}
			if stream != uuid.Nil {
				result.StreamID = stream.String()
			}
			return result, &DispatchError{
				Command:   name,
				CommandID: cmd.Metadata.ID,
				StreamID:  stream,
				Kind:      kind,
				Err:       err,
			}
		}

		ctx = WithCommand(ctx, cmd.Metadata)

		id, err := resolve(cmd.Payload)
		if errors.Is(err, ErrBypassed) {
			return AppendResult{Successful: true, Outcome: Bypassed}, nil
		}
		if err != nil {
			return fail(ErrResolution, uuid.Nil, err)
		}
		ctx = WithStreamID(ctx, id)

		stream := OpenStream(store, id)
		agg, err := rehydrator.Get(ctx, stream)
		if err != nil {
			return fail(ErrRehydration, id, err)
		}

		events, err := mutate(agg, cmd.Payload)
		if err != nil {
			return fail(ErrMutation, id, err)
		}
		if events == nil {
			return AppendResult{
				Successful:          true,
				StreamID:            stream.Name(),
				NextExpectedVersion: stream.Version(),
				Outcome:             Skipped,
			}, nil
		}

		result, err := appender.Append(ctx, stream, cmd.Metadata, events)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return fail(ErrConflict, id, err)
			}
			return fail(ErrAppend, id, err)
		}
		return result, nil
	}
}
