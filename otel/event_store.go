package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	es "github.com/terraskye/progression"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ es.EventStore = (*TelemetryStore)(nil)

// TelemetryStore decorates an EventStore with a span and metrics per
// operation. Envelopes pass through untouched.
type TelemetryStore struct {
	next es.EventStore
}

func NewTelemetryStore(next es.EventStore) *TelemetryStore {
	return &TelemetryStore{next: next}
}

// Save with metrics + span
func (t *TelemetryStore) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	var streamID string
	if len(events) > 0 {
		streamID = events[0].StreamID
	}

	ctx, span := tracer.Start(ctx, "EventStore.Save",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("save"),
			AttrStreamID.String(streamID),
			AttrRevision.String(fmt.Sprint(revision)),
			AttrEventCount.Int(len(events)),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := t.next.Save(ctx, events, revision)

	opAttr := metric.WithAttributes(AttrOperation.String("save"))
	EventStoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()), opAttr)
	EventStoreSaves.Add(ctx, 1)

	if err != nil {
		EventStoreErrors.Add(ctx, 1, opAttr)
		if errors.Is(err, es.ErrConflict) {
			span.AddEvent("concurrency_conflict")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	EventsAppended.Add(ctx, int64(len(events)))
	span.SetAttributes(AttrStreamVersion.Int64(int64(result.NextExpectedVersion)))
	return result, nil
}

func (t *TelemetryStore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	return t.load(ctx, "EventStore.LoadStream", id, func(ctx context.Context) (*es.Iterator[*es.Envelope], error) {
		return t.next.LoadStream(ctx, id)
	})
}

func (t *TelemetryStore) LoadStreamFrom(ctx context.Context, id string, after uint64) (*es.Iterator[*es.Envelope], error) {
	return t.load(ctx, "EventStore.LoadStreamFrom", id, func(ctx context.Context) (*es.Iterator[*es.Envelope], error) {
		return t.next.LoadStreamFrom(ctx, id, after)
	})
}

func (t *TelemetryStore) LoadFromAll(ctx context.Context, after uint64) (*es.Iterator[*es.Envelope], error) {
	return t.load(ctx, "EventStore.LoadFromAll", "", func(ctx context.Context) (*es.Iterator[*es.Envelope], error) {
		return t.next.LoadFromAll(ctx, after)
	})
}

func (t *TelemetryStore) Close() error {
	return t.next.Close()
}

// load opens a span that stays open until the returned iterator is drained
// or fails, so it covers the lazy reads of the underlying store.
func (t *TelemetryStore) load(ctx context.Context, op, id string, open func(context.Context) (*es.Iterator[*es.Envelope], error)) (*es.Iterator[*es.Envelope], error) {
	opAttr := metric.WithAttributes(AttrOperation.String(op))
	startedAt := time.Now()
	ctx, span := tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrStreamID.String(id)),
	)
	EventStoreLoads.Add(ctx, 1, opAttr)

	iter, err := open(ctx)
	if err != nil {
		EventStoreErrors.Add(ctx, 1, opAttr)
		span.RecordError(err)
		if !errors.Is(err, es.ErrStreamNotFound) {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		return iter, err
	}

	var (
		eventCount int64
		ended      bool
	)
	end := func(err error) {
		if ended {
			return
		}
		ended = true
		span.SetAttributes(AttrEventCount.Int64(eventCount))
		EventStoreDuration.Record(ctx, float64(time.Since(startedAt).Milliseconds()), opAttr)
		if err != nil {
			EventStoreErrors.Add(ctx, 1, opAttr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}

	return es.NewIteratorFunc(func(ictx context.Context) (*es.Envelope, error) {
		if !iter.Next(ictx) {
			err := iter.Err()
			end(err)
			if err == nil {
				return nil, io.EOF
			}
			return nil, err
		}
		eventCount++
		EventsLoaded.Add(ctx, 1)
		return iter.Value(), nil
	}), nil
}
