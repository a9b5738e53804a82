package progression

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Store errors.
var (
	ErrStreamNotFound    = errors.New("stream not found")
	ErrStreamExists      = errors.New("stream already exists")
	ErrInvalidRevision   = errors.New("invalid revision")
	ErrInvalidEventBatch = errors.New("invalid event batch")
	ErrEventNotFound     = errors.New("event type not registered")
	ErrStoreClosed       = errors.New("event store closed")
)

// Dispatch error kinds. A *DispatchError matches exactly one of them with errors.Is.
var (
	// ErrResolution means the payload lacks what the stream resolver needs.
	ErrResolution = errors.New("stream resolution failed")
	// ErrRehydration means the aggregate could not be rebuilt from its stream.
	ErrRehydration = errors.New("rehydration failed")
	// ErrMutation means the aggregate rejected the command.
	ErrMutation = errors.New("mutation rejected")
	// ErrConflict means the stream advanced since it was read. Retryable.
	ErrConflict = errors.New("concurrency conflict")
	// ErrAppend means the store failed to write for a reason other than a conflict.
	ErrAppend = errors.New("append failed")
)

// Routing errors.
var (
	ErrUnknownCommand = errors.New("no handler registered for command")
	ErrInvalidPayload = errors.New("invalid command payload")
	ErrBusStopped     = errors.New("command bus is stopped")
)

// Publication errors.
var (
	// ErrSkippedEvent is returned by an EventHandler that does not handle the
	// event it was given.
	ErrSkippedEvent = errors.New("event skipped")
	// ErrPublish means the events were committed but could not be published.
	ErrPublish        = errors.New("publish failed")
	ErrEventBusClosed = errors.New("event bus closed")
)

// ErrBypassed is returned by a Resolver to signal that the command must be
// ignored by this dispatcher. The dispatcher reports it as a successful no-op.
var ErrBypassed = errors.New("command bypassed")

// StreamRevisionConflictError is returned by an EventStore when the expected
// revision does not match the stream's actual revision.
type StreamRevisionConflictError struct {
	Stream           string
	ExpectedRevision uint64
	ActualRevision   uint64
}

func (e *StreamRevisionConflictError) Error() string {
	return fmt.Sprintf("stream %q: expected revision %d, actual %d", e.Stream, e.ExpectedRevision, e.ActualRevision)
}

// Is makes every revision conflict match ErrConflict.
func (e *StreamRevisionConflictError) Is(target error) bool {
	return target == ErrConflict
}

// DispatchError is returned by a dispatcher for every failed command.
type DispatchError struct {
	Command   string
	CommandID uuid.UUID
	StreamID  uuid.UUID
	Kind      error
	Err       error
}

func (e *DispatchError) Error() string {
	if e.StreamID == uuid.Nil {
		return fmt.Sprintf("dispatch %s: %v: %v", e.Command, e.Kind, e.Err)
	}
	return fmt.Sprintf("dispatch %s (stream %s): %v: %v", e.Command, e.StreamID, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether the whole command may be dispatched again.
// Only concurrency conflicts are retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// UnknownEventError is returned when an aggregate is asked to apply an event
// it has no handler for.
type UnknownEventError struct {
	Event Event
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("no handler for event %T", e.Event)
}
