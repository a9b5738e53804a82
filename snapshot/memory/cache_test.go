package memory_test

import (
	"testing"

	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/snapshot/memory"
)

func TestCacheKeepsNewest(t *testing.T) {
	cache := memory.New()
	ctx := t.Context()

	if _, ok, err := cache.Get(ctx, "tally", "s1"); ok || err != nil {
		t.Fatalf("expected a miss, got ok=%v err=%v", ok, err)
	}

	for _, v := range []uint64{5, 3} {
		if err := cache.Put(ctx, es.Snapshot{AggregateType: "tally", StreamID: "s1", Version: v, State: []byte(`{}`)}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, ok, err := cache.Get(ctx, "tally", "s1")
	if err != nil || !ok {
		t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
	}
	if got.Version != 5 {
		t.Fatalf("expected version 5 to win, got %d", got.Version)
	}
	if _, ok, _ := cache.Get(ctx, "other", "s1"); ok {
		t.Fatal("aggregate types must not share snapshots")
	}
}

func TestCacheCopiesState(t *testing.T) {
	cache := memory.New()
	state := []byte(`{"items":["a"]}`)
	_ = cache.Put(t.Context(), es.Snapshot{AggregateType: "tally", StreamID: "s1", Version: 1, State: state})
	state[0] = 'X'

	got, _, _ := cache.Get(t.Context(), "tally", "s1")
	got.State[1] = 'Y'

	again, _, _ := cache.Get(t.Context(), "tally", "s1")
	if string(again.State) != `{"items":["a"]}` {
		t.Fatalf("cached state was shared: %s", again.State)
	}
}
