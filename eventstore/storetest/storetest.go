// Package storetest holds the behaviour every EventStore implementation must
// share. Store packages call Run from their own tests.
package storetest

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/fixtures"
)

// Factory returns an empty, open store. Stores backed by shared servers may
// return a store that already holds other streams.
type Factory func(t *testing.T) es.EventStore

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store es.EventStore)
	}{
		{"SaveAndLoad", testSaveAndLoad},
		{"CommittedEnvelopes", testCommittedEnvelopes},
		{"EmptyBatch", testEmptyBatch},
		{"MissingStream", testMissingStream},
		{"LoadStreamFrom", testLoadStreamFrom},
		{"RevisionConflict", testRevisionConflict},
		{"StreamStates", testStreamStates},
		{"MixedBatch", testMixedBatch},
		{"LoadFromAll", testLoadFromAll},
		{"ConcurrentWriters", testConcurrentWriters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			t.Cleanup(func() { _ = store.Close() })
			tt.fn(t, store)
		})
	}
}

func streamName() string { return uuid.NewString() }

func mustSave(t *testing.T, store es.EventStore, batch []es.Envelope, rev es.StreamState) es.AppendResult {
	t.Helper()
	result, err := store.Save(t.Context(), batch, rev)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return result
}

func load(t *testing.T, store es.EventStore, id string, after uint64) []*es.Envelope {
	t.Helper()
	var (
		iter *es.Iterator[*es.Envelope]
		err  error
	)
	if after == 0 {
		iter, err = store.LoadStream(t.Context(), id)
	} else {
		iter, err = store.LoadStreamFrom(t.Context(), id, after)
	}
	if err != nil {
		t.Fatalf("load %s after %d: %v", id, after, err)
	}
	events, err := iter.All(t.Context())
	if err != nil {
		t.Fatalf("iterate %s: %v", id, err)
	}
	return events
}

func testCommittedEnvelopes(t *testing.T, store es.EventStore) {
	id := streamName()
	mustSave(t, store, fixtures.Batch(id, 0, fixtures.ItemAdded{Item: "a"}), es.NoStream{})

	batch := fixtures.Batch(id, 1, fixtures.ItemAdded{Item: "b"}, fixtures.ItemAdded{Item: "c"})
	result := mustSave(t, store, batch, es.Revision(1))

	if len(result.Events) != len(batch) {
		t.Fatalf("expected %d committed envelopes, got %d", len(batch), len(result.Events))
	}
	var previous uint64
	for i, env := range result.Events {
		if env.EventID != batch[i].EventID || env.StreamID != id {
			t.Errorf("envelope %d: expected event %s on %s, got %s on %s", i, batch[i].EventID, id, env.EventID, env.StreamID)
		}
		if env.Version != uint64(i)+2 {
			t.Errorf("envelope %d: expected version %d, got %d", i, i+2, env.Version)
		}
		if env.GlobalVersion == 0 || env.GlobalVersion < previous {
			t.Errorf("envelope %d: expected an assigned, non-decreasing global version, got %d after %d", i, env.GlobalVersion, previous)
		}
		previous = env.GlobalVersion
	}
}

func testSaveAndLoad(t *testing.T, store es.EventStore) {
	id := streamName()
	batch := fixtures.Batch(id, 0, fixtures.ItemAdded{Item: "a"}, fixtures.ItemAdded{Item: "b"}, fixtures.ItemRemoved{Item: "a"})
	batch[0].Metadata[es.MetadataCausationID] = "cmd-1"

	result := mustSave(t, store, batch, es.Revision(0))
	if !result.Successful || result.NextExpectedVersion != 3 || result.StreamID != id {
		t.Fatalf("unexpected result %+v", result)
	}

	events := load(t, store, id, 0)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, env := range events {
		if env.Version != uint64(i+1) {
			t.Errorf("event %d: expected version %d, got %d", i, i+1, env.Version)
		}
		if env.EventID != batch[i].EventID || env.StreamID != id {
			t.Errorf("event %d: identity not preserved: %+v", i, env)
		}
		if env.CorrelationID() != "corr-1" {
			t.Errorf("event %d: correlation id lost: %v", i, env.Metadata)
		}
	}
	if events[0].CausationID() != "cmd-1" {
		t.Errorf("causation id lost: %v", events[0].Metadata)
	}
	if events[1].Event != (fixtures.ItemAdded{Item: "b"}) || events[2].Event != (fixtures.ItemRemoved{Item: "a"}) {
		t.Errorf("events not decoded to their types: %#v %#v", events[1].Event, events[2].Event)
	}
	if !(events[0].GlobalVersion < events[1].GlobalVersion && events[1].GlobalVersion < events[2].GlobalVersion) {
		t.Errorf("global versions not increasing: %d %d %d", events[0].GlobalVersion, events[1].GlobalVersion, events[2].GlobalVersion)
	}

	result = mustSave(t, store, fixtures.Batch(id, 3, fixtures.ItemAdded{Item: "c"}), es.Revision(3))
	if result.NextExpectedVersion != 4 {
		t.Fatalf("expected version 4, got %d", result.NextExpectedVersion)
	}
}

func testEmptyBatch(t *testing.T, store es.EventStore) {
	result, err := store.Save(t.Context(), nil, es.Any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Successful {
		t.Fatalf("expected a successful result, got %+v", result)
	}
}

func testMissingStream(t *testing.T, store es.EventStore) {
	iter, err := store.LoadStream(t.Context(), streamName())
	if err == nil {
		// lazy stores report a missing stream on the first Next
		_, err = iter.All(t.Context())
	}
	if !errors.Is(err, es.ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
}

func testLoadStreamFrom(t *testing.T, store es.EventStore) {
	id := streamName()
	mustSave(t, store, fixtures.Batch(id, 0, fixtures.ItemAdded{Item: "a"}, fixtures.ItemAdded{Item: "b"}, fixtures.ItemAdded{Item: "c"}), es.NoStream{})

	events := load(t, store, id, 1)
	if len(events) != 2 || events[0].Version != 2 || events[1].Version != 3 {
		t.Fatalf("expected versions 2 and 3, got %d events", len(events))
	}

	if events := load(t, store, id, 3); len(events) != 0 {
		t.Fatalf("expected no events after the last version, got %d", len(events))
	}

	iter, err := store.LoadStreamFrom(t.Context(), id, 7)
	if err == nil {
		_, err = iter.All(t.Context())
	}
	if !errors.Is(err, es.ErrInvalidRevision) {
		t.Fatalf("expected ErrInvalidRevision past the end, got %v", err)
	}
}

func testRevisionConflict(t *testing.T, store es.EventStore) {
	id := streamName()
	mustSave(t, store, fixtures.Batch(id, 0, fixtures.ItemAdded{Item: "a"}), es.Revision(0))

	_, err := store.Save(t.Context(), fixtures.Batch(id, 0, fixtures.ItemAdded{Item: "b"}, fixtures.ItemAdded{Item: "c"}), es.Revision(0))
	if !errors.Is(err, es.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var conflict *es.StreamRevisionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *StreamRevisionConflictError, got %T", err)
	}
	if conflict.ExpectedRevision != 0 || conflict.ActualRevision != 1 {
		t.Errorf("unexpected conflict %+v", conflict)
	}

	if events := load(t, store, id, 0); len(events) != 1 {
		t.Fatalf("conflicting batch was partially written: %d events", len(events))
	}
}

func testStreamStates(t *testing.T, store es.EventStore) {
	id := streamName()

	if _, err := store.Save(t.Context(), fixtures.Batch(id, 0, fixtures.ItemAdded{}), es.StreamExists{}); !errors.Is(err, es.ErrStreamNotFound) {
		t.Fatalf("StreamExists on a missing stream: expected ErrStreamNotFound, got %v", err)
	}
	mustSave(t, store, fixtures.Batch(id, 0, fixtures.ItemAdded{}), es.NoStream{})
	if _, err := store.Save(t.Context(), fixtures.Batch(id, 1, fixtures.ItemAdded{}), es.NoStream{}); !errors.Is(err, es.ErrStreamExists) {
		t.Fatalf("NoStream on an existing stream: expected ErrStreamExists, got %v", err)
	}
	mustSave(t, store, fixtures.Batch(id, 1, fixtures.ItemAdded{}), es.StreamExists{})
	result := mustSave(t, store, fixtures.Batch(id, 2, fixtures.ItemAdded{}), es.Any{})
	if result.NextExpectedVersion != 3 {
		t.Fatalf("expected version 3, got %d", result.NextExpectedVersion)
	}
}

func testMixedBatch(t *testing.T, store es.EventStore) {
	a, b := streamName(), streamName()
	batch := append(fixtures.Batch(a, 0, fixtures.ItemAdded{}), fixtures.Batch(b, 0, fixtures.ItemAdded{})...)

	if _, err := store.Save(t.Context(), batch, es.Any{}); !errors.Is(err, es.ErrInvalidEventBatch) {
		t.Fatalf("expected ErrInvalidEventBatch, got %v", err)
	}
}

func testLoadFromAll(t *testing.T, store es.EventStore) {
	a, b := streamName(), streamName()
	mustSave(t, store, fixtures.Batch(a, 0, fixtures.ItemAdded{Item: "a1"}), es.NoStream{})
	mustSave(t, store, fixtures.Batch(b, 0, fixtures.ItemAdded{Item: "b1"}), es.NoStream{})
	mustSave(t, store, fixtures.Batch(a, 1, fixtures.ItemAdded{Item: "a2"}), es.Revision(1))

	ours := func(after uint64) []*es.Envelope {
		iter, err := store.LoadFromAll(t.Context(), after)
		if err != nil {
			t.Fatalf("load all: %v", err)
		}
		all, err := iter.All(t.Context())
		if err != nil {
			t.Fatalf("iterate all: %v", err)
		}
		var out []*es.Envelope
		for _, env := range all {
			if env.StreamID == a || env.StreamID == b {
				out = append(out, env)
			}
		}
		return out
	}

	events := ours(0)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []string{"a1", "b1", "a2"}
	for i, env := range events {
		if added, _ := env.Event.(fixtures.ItemAdded); added.Item != want[i] {
			t.Errorf("position %d: expected %s, got %#v", i, want[i], env.Event)
		}
	}

	rest := ours(events[1].GlobalVersion)
	if len(rest) != 1 || rest[0].EventID != events[2].EventID {
		t.Fatalf("expected only the last event after position %d, got %d events", events[1].GlobalVersion, len(rest))
	}
}

func testConcurrentWriters(t *testing.T, store es.EventStore) {
	id := streamName()
	mustSave(t, store, fixtures.Batch(id, 0, fixtures.ItemAdded{Item: "seed"}), es.NoStream{})

	const writers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := fixtures.Batch(id, 1, fixtures.ItemAdded{Item: uuid.NewString()}, fixtures.ItemAdded{Item: string(rune('a' + i))})
			_, err := store.Save(t.Context(), batch, es.Revision(1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, es.ErrConflict):
				conflicts++
			default:
				t.Errorf("writer %d: unexpected error %v", i, err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d and %d", writers-1, wins, conflicts)
	}
	if events := load(t, store, id, 0); len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}
