package progression

import (
	"context"
)

// EventStore defines the contract for an append-only event store.
//
// Implementations must guarantee:
//   - Events for a given stream are stored and returned in version order.
//   - Save is atomic: either every envelope in the batch is persisted at
//     consecutive versions or none is.
//   - Save enforces the expected StreamState inside the same atomic unit as
//     the write. A stale Revision fails with a *StreamRevisionConflictError.
//   - Loading a stream that holds no events fails with ErrStreamNotFound.
type EventStore interface {
	// Save appends all envelopes to the stream they name. Every envelope in
	// the batch must carry the same StreamID. The result lists the envelopes
	// as committed, with Version and GlobalVersion assigned by the store.
	Save(ctx context.Context, events []Envelope, revision StreamState) (AppendResult, error)

	// LoadStream loads all events of a stream from the first version onward.
	LoadStream(ctx context.Context, id string) (*Iterator[*Envelope], error)

	// LoadStreamFrom loads the events of a stream whose version is greater
	// than after. Passing the current version of the stream yields an empty
	// iterator; passing a larger value fails with ErrInvalidRevision.
	LoadStreamFrom(ctx context.Context, id string, after uint64) (*Iterator[*Envelope], error)

	// LoadFromAll loads events across every stream whose global version is
	// greater than after, in global order.
	LoadFromAll(ctx context.Context, after uint64) (*Iterator[*Envelope], error)

	// Close releases any resources held by the store. Close is idempotent.
	Close() error
}

// Outcome tells how a dispatched command ended.
type Outcome int

const (
	// Appended means events were written to the stream.
	Appended Outcome = iota
	// NoChange means the mutation ran and produced an empty sequence.
	NoChange
	// Skipped means the mutation reported that the command does not apply.
	Skipped
	// Bypassed means the command was ignored before stream resolution.
	Bypassed
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case NoChange:
		return "no-change"
	case Skipped:
		return "skipped"
	case Bypassed:
		return "bypassed"
	default:
		return "unknown"
	}
}

// AppendResult describes the outcome of an append or of a whole dispatch.
type AppendResult struct {
	Successful          bool
	StreamID            string
	NextExpectedVersion uint64
	Outcome             Outcome
	Events              []Envelope
}
