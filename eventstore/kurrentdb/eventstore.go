package kurrentdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kurrent-io/KurrentDB-Client-Go/kurrentdb"
	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/record"
)

const readAll = ^uint64(0)

type eventstore struct {
	client *kurrentdb.Client
}

var _ es.EventStore = (*eventstore)(nil)

// NewEventStore creates a KurrentDB-backed eventstore. The store owns client
// and closes it on Close.
func NewEventStore(client *kurrentdb.Client) es.EventStore {
	return &eventstore{client: client}
}

// Connect creates a client for the KurrentDB cluster described by
// connString.
func Connect(connString string) (*kurrentdb.Client, error) {
	cfg, err := kurrentdb.ParseConnectionString(connString)
	if err != nil {
		return nil, fmt.Errorf("parse kurrentdb connection string: %w", err)
	}
	client, err := kurrentdb.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kurrentdb client: %w", err)
	}
	return client, nil
}

// Dial connects to the KurrentDB cluster described by connString.
func Dial(connString string) (es.EventStore, error) {
	client, err := Connect(connString)
	if err != nil {
		return nil, err
	}
	return NewEventStore(client), nil
}

// expectedState maps a stream state onto KurrentDB's. KurrentDB numbers
// events from 0, so a stream at version n has revision n-1.
func expectedState(state es.StreamState) (kurrentdb.StreamState, error) {
	switch rev := state.(type) {
	case es.Any:
		return kurrentdb.Any{}, nil
	case es.NoStream:
		return kurrentdb.NoStream{}, nil
	case es.StreamExists:
		return kurrentdb.StreamExists{}, nil
	case es.Revision:
		if rev == 0 {
			return kurrentdb.NoStream{}, nil
		}
		return kurrentdb.StreamRevision{Value: uint64(rev) - 1}, nil
	default:
		return nil, fmt.Errorf("unsupported revision type %T: %w", state, es.ErrInvalidRevision)
	}
}

func (e *eventstore) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	if len(events) == 0 {
		return es.AppendResult{Successful: true}, nil
	}

	streamID, err := record.SameStream(events)
	if err != nil {
		return es.AppendResult{}, err
	}
	state, err := expectedState(revision)
	if err != nil {
		return es.AppendResult{}, fmt.Errorf("save to %q: %w", streamID, err)
	}

	kevents := make([]kurrentdb.EventData, len(events))
	for i, env := range events {
		rec, err := record.FromEnvelope(env)
		if err != nil {
			return es.AppendResult{}, err
		}
		kevents[i] = kurrentdb.EventData{
			EventID:     rec.EventID,
			EventType:   rec.Type,
			ContentType: kurrentdb.ContentTypeJson,
			Data:        rec.Data,
			Metadata:    rec.Metadata,
		}
	}

	result, err := e.client.AppendToStream(ctx, streamID, kurrentdb.AppendToStreamOptions{
		StreamState: state,
	}, kevents...)
	if err != nil {
		return es.AppendResult{}, e.appendErr(ctx, streamID, revision, err)
	}

	// stream revisions are 0-based, versions 1-based
	last := result.NextExpectedVersion + 1
	committed := make([]es.Envelope, len(events))
	for i, env := range events {
		env.Version = last - uint64(len(events)-1-i)
		env.GlobalVersion = result.CommitPosition
		committed[i] = env
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: last,
		Events:              committed,
	}, nil
}

func (e *eventstore) appendErr(ctx context.Context, streamID string, revision es.StreamState, err error) error {
	if code, ok := errorCode(err); !ok || code != kurrentdb.ErrorCodeWrongExpectedVersion {
		return fmt.Errorf("append to %q: %w", streamID, err)
	}
	switch rev := revision.(type) {
	case es.NoStream:
		return fmt.Errorf("stream %q: already exists: %w", streamID, es.ErrStreamExists)
	case es.StreamExists:
		return fmt.Errorf("stream %q: should exist: %w", streamID, es.ErrStreamNotFound)
	case es.Revision:
		actual, verr := e.version(ctx, streamID)
		if verr != nil {
			actual = uint64(rev) + 1
		}
		return &es.StreamRevisionConflictError{
			Stream:           streamID,
			ExpectedRevision: uint64(rev),
			ActualRevision:   actual,
		}
	}
	return fmt.Errorf("append to %q: %w", streamID, err)
}

// version returns the 1-based version of the last event in the stream, or 0
// when the stream does not exist.
func (e *eventstore) version(ctx context.Context, streamID string) (uint64, error) {
	stream, err := e.client.ReadStream(ctx, streamID, kurrentdb.ReadStreamOptions{
		Direction: kurrentdb.Backwards,
		From:      kurrentdb.End{},
	}, 1)
	if err != nil {
		if code, ok := errorCode(err); ok && code == kurrentdb.ErrorCodeResourceNotFound {
			return 0, nil
		}
		return 0, err
	}
	defer stream.Close()

	last, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		if code, ok := errorCode(err); ok && code == kurrentdb.ErrorCodeResourceNotFound {
			return 0, nil
		}
		return 0, err
	}
	return last.OriginalEvent().EventNumber + 1, nil
}

func (e *eventstore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	return e.LoadStreamFrom(ctx, id, 0)
}

func (e *eventstore) LoadStreamFrom(ctx context.Context, id string, after uint64) (*es.Iterator[*es.Envelope], error) {
	version, err := e.version(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load stream %q: %w", id, err)
	}
	if version == 0 {
		return nil, fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
	}
	if after > version {
		return nil, fmt.Errorf(
			"load stream %q: requested events after %d but stream has %d: %w",
			id, after, version, es.ErrInvalidRevision,
		)
	}
	if after == version {
		return es.NewSliceIterator[*es.Envelope](nil), nil
	}

	streamer, err := e.client.ReadStream(ctx, id, kurrentdb.ReadStreamOptions{
		Direction:      kurrentdb.Forwards,
		From:           kurrentdb.StreamRevision{Value: after},
		ResolveLinkTos: true,
	}, readAll)
	if err != nil {
		return nil, fmt.Errorf("load stream %q: %w", id, err)
	}

	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		if err := ctx.Err(); err != nil {
			streamer.Close()
			return nil, err
		}
		resolved, err := streamer.Recv()
		if err != nil {
			streamer.Close()
			if code, ok := errorCode(err); ok && code == kurrentdb.ErrorCodeResourceNotFound {
				return nil, fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
			}
			return nil, err
		}
		return Decode(resolved.OriginalEvent())
	}), nil
}

// LoadFromAll reads $all after the given commit position. System events are
// skipped; GlobalVersion holds the commit position of each event.
func (e *eventstore) LoadFromAll(ctx context.Context, after uint64) (*es.Iterator[*es.Envelope], error) {
	var from kurrentdb.AllPosition = kurrentdb.Start{}
	if after > 0 {
		from = kurrentdb.Position{Commit: after, Prepare: after}
	}
	streamer, err := e.client.ReadAll(ctx, kurrentdb.ReadAllOptions{
		Direction:      kurrentdb.Forwards,
		From:           from,
		ResolveLinkTos: true,
	}, readAll)
	if err != nil {
		return nil, fmt.Errorf("load all after %d: %w", after, err)
	}

	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		for {
			if err := ctx.Err(); err != nil {
				streamer.Close()
				return nil, err
			}
			resolved, err := streamer.Recv()
			if err != nil {
				streamer.Close()
				return nil, err
			}
			ev := resolved.OriginalEvent()
			if IsSystemEvent(ev) {
				continue
			}
			if ev.Position.Commit <= after && after > 0 {
				continue
			}
			return Decode(ev)
		}
	}), nil
}

func (e *eventstore) Close() error {
	return e.client.Close()
}

// IsSystemEvent reports whether ev was written by KurrentDB itself.
func IsSystemEvent(ev *kurrentdb.RecordedEvent) bool {
	return strings.HasPrefix(ev.EventType, "$") || strings.HasPrefix(ev.StreamID, "$")
}

// Decode turns a recorded event into an envelope. Versions are 1-based and
// GlobalVersion holds the commit position.
func Decode(ev *kurrentdb.RecordedEvent) (*es.Envelope, error) {
	rec := record.Record{
		EventID:       ev.EventID,
		StreamID:      ev.StreamID,
		Type:          ev.EventType,
		Data:          ev.Data,
		Metadata:      ev.UserMetadata,
		Version:       ev.EventNumber + 1,
		GlobalVersion: ev.Position.Commit,
		OccurredAt:    ev.CreatedDate,
	}
	return rec.Envelope()
}

func errorCode(err error) (kurrentdb.ErrorCode, bool) {
	var kerr *kurrentdb.Error
	if errors.As(err, &kerr) {
		return kerr.Code(), true
	}
	return 0, false
}
