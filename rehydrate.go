package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Rehydrator rebuilds aggregates of one type from their event streams.
//
// Every call to Get returns a new instance owned by the caller. When a
// SnapshotCache is configured, the newest snapshot is decoded into a fresh
// instance and only the events after it are replayed; once SnapshotEvery or
// more events had to be replayed, a new snapshot is stored.
type Rehydrator[A Aggregate] struct {
	Type          AggregateType[A]
	Snapshots     SnapshotCache
	SnapshotEvery uint64
}

// Get replays the history of stream into a new aggregate. The stream handle
// records the version the returned state reflects.
func (r Rehydrator[A]) Get(ctx context.Context, stream *Stream) (A, error) {
	var zero A

	agg, after := r.restore(ctx, stream)

	iter, err := stream.Events(ctx, after)
	if err != nil && after > 0 && (errors.Is(err, ErrInvalidRevision) || errors.Is(err, ErrStreamNotFound)) {
		// snapshot is ahead of the store, replay from the start
		agg, after = r.Type.New(stream.ID()), 0
		iter, err = stream.Events(ctx, 0)
	}
	if err != nil {
		return zero, fmt.Errorf("load stream %s: %w", stream.ID(), err)
	}

	var replayed uint64
	for iter.Next(ctx) {
		env := iter.Value()
		if err := agg.Apply(env.Event); err != nil {
			return zero, fmt.Errorf("apply %s at version %d of stream %s: %w", env.Event.EventType(), env.Version, stream.ID(), err)
		}
		replayed++
	}
	if err := iter.Err(); err != nil {
		return zero, fmt.Errorf("read stream %s: %w", stream.ID(), err)
	}

	if r.Snapshots != nil && r.SnapshotEvery > 0 && replayed >= r.SnapshotEvery {
		r.store(ctx, stream, agg)
	}

	return agg, nil
}

func (r Rehydrator[A]) restore(ctx context.Context, stream *Stream) (A, uint64) {
	if r.Snapshots == nil {
		return r.Type.New(stream.ID()), 0
	}

	snap, ok, err := r.Snapshots.Get(ctx, r.Type.Name, stream.Name())
	if err != nil || !ok || snap.Version == 0 {
		return r.Type.New(stream.ID()), 0
	}

	agg := r.Type.New(stream.ID())
	if err := json.Unmarshal(snap.State, agg); err != nil {
		return r.Type.New(stream.ID()), 0
	}
	return agg, snap.Version
}

func (r Rehydrator[A]) store(ctx context.Context, stream *Stream, agg A) {
	state, err := json.Marshal(agg)
	if err != nil {
		return
	}
	// a failed put only costs a longer replay next time
	_ = r.Snapshots.Put(ctx, Snapshot{
		AggregateType: r.Type.Name,
		StreamID:      stream.Name(),
		Version:       stream.Version(),
		State:         state,
		TakenAt:       time.Now().UTC(),
	})
}
