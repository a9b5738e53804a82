package progression

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Stream is a handle to one aggregate's event stream.
//
// The handle records the version it observed while its history was read.
// Append writes at exactly that version, so a concurrent writer that got
// there first turns the append into a conflict. A Stream belongs to a single
// dispatch and is not safe for concurrent use.
type Stream struct {
	id      uuid.UUID
	store   EventStore
	version uint64
}

// OpenStream returns a handle to the stream named id. No I/O happens until
// Events or Append is called.
func OpenStream(store EventStore, id uuid.UUID) *Stream {
	return &Stream{id: id, store: store}
}

// ID returns the stream id.
func (s *Stream) ID() uuid.UUID { return s.id }

// Name returns the stream id in the form used by the EventStore.
func (s *Stream) Name() string { return s.id.String() }

// Version returns the last version observed on the stream.
func (s *Stream) Version() uint64 { return s.version }

// Events returns the events with a version greater than after. Each consumed
// envelope advances the observed version; a gap in the version sequence is
// reported as ErrInvalidRevision. A stream that does not exist yet is
// treated as empty when reading from the start.
func (s *Stream) Events(ctx context.Context, after uint64) (*Iterator[*Envelope], error) {
	s.version = after

	var (
		iter *Iterator[*Envelope]
		err  error
	)
	if after == 0 {
		iter, err = s.store.LoadStream(ctx, s.Name())
	} else {
		iter, err = s.store.LoadStreamFrom(ctx, s.Name(), after)
	}
	if errors.Is(err, ErrStreamNotFound) && after == 0 {
		return NewSliceIterator[*Envelope](nil), nil
	}
	if err != nil {
		return nil, err
	}

	return NewIteratorFunc(func(ctx context.Context) (*Envelope, error) {
		if !iter.Next(ctx) {
			if err := iter.Err(); err != nil {
				if errors.Is(err, ErrStreamNotFound) && s.version == 0 {
					return nil, io.EOF
				}
				return nil, err
			}
			return nil, io.EOF
		}
		env := iter.Value()
		if env.Version != s.version+1 {
			return nil, fmt.Errorf("stream %s: expected version %d, got %d: %w", s.id, s.version+1, env.Version, ErrInvalidRevision)
		}
		s.version = env.Version
		return env, nil
	}), nil
}

// Append writes envelopes atomically at the observed version.
func (s *Stream) Append(ctx context.Context, envelopes []Envelope) (AppendResult, error) {
	result, err := s.store.Save(ctx, envelopes, Revision(s.version))
	if err != nil {
		return result, err
	}
	s.version = result.NextExpectedVersion
	return result, nil
}
