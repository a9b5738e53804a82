package progression_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	cqrs "github.com/terraskye/progression"
	"github.com/terraskye/progression/fixtures"
)

func noWait(retries uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, retries)
	}
}

func TestConflictRetryRedispatchesWholeCommand(t *testing.T) {
	id := uuid.New()
	store := fixtures.NewStoreSpy().WithHistory(id.String(), fixtures.ItemAdded{Item: "a"})
	conflicts := 1
	store.BeforeSave = func(ctx context.Context, events []cqrs.Envelope) {
		if conflicts == 0 {
			return
		}
		conflicts--
		if _, err := store.Save(ctx, fixtures.Batch(id.String(), 1, fixtures.ItemAdded{Item: "b"}), cqrs.Revision(1)); err != nil {
			panic(err)
		}
	}

	rehydrations := 0
	handler := cqrs.NewDispatcher(store, fixtures.TallyType,
		cqrs.Direct(func(p fixtures.AddItems) uuid.UUID { return p.TallyID }),
		func(t *fixtures.Tally, p fixtures.AddItems) (iter.Seq[cqrs.Event], error) {
			rehydrations++
			return t.Add(p.Items...)
		},
	)

	cmd := fixtures.NewTestCommand("tally.add", fixtures.AddItems{TallyID: id, Items: []string{"b", "c"}}).Build()
	result, err := cqrs.WithConflictRetry(handler, noWait(3))(t.Context(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rehydrations != 2 {
		t.Fatalf("expected the full cycle to run twice, ran %d times", rehydrations)
	}
	// the retry saw the concurrent "b" and only added "c"
	history := store.Stream(id.String())
	if len(history) != 3 || result.NextExpectedVersion != 3 {
		t.Fatalf("expected 3 events, got %d (result %+v)", len(history), result)
	}
}

func TestConflictRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, cmd cqrs.Command[fixtures.AddItems]) (cqrs.AppendResult, error) {
		calls++
		return cqrs.AppendResult{}, &cqrs.DispatchError{Kind: cqrs.ErrMutation, Err: errors.New("rejected")}
	}

	_, err := cqrs.WithConflictRetry(handler, noWait(5))(t.Context(), fixtures.NewTestCommand("x", fixtures.AddItems{}).Build())
	if !errors.Is(err, cqrs.ErrMutation) {
		t.Fatalf("expected the mutation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestConflictRetryGivesUp(t *testing.T) {
	store := fixtures.ConflictingStore()
	handler := cqrs.NewDispatcher(store, fixtures.TallyType,
		cqrs.Direct(func(p fixtures.AddItems) uuid.UUID { return p.TallyID }),
		func(t *fixtures.Tally, p fixtures.AddItems) (iter.Seq[cqrs.Event], error) { return t.Add(p.Items...) },
	)

	cmd := fixtures.NewTestCommand("tally.add", fixtures.AddItems{TallyID: uuid.New(), Items: []string{"a"}}).Build()
	_, err := cqrs.WithConflictRetry(handler, noWait(2))(t.Context(), cmd)
	if !errors.Is(err, cqrs.ErrConflict) {
		t.Fatalf("expected the last conflict, got %v", err)
	}
	if store.SaveCalls != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d saves", store.SaveCalls)
	}
}
