package progression_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	cqrs "github.com/terraskye/progression"
	"github.com/terraskye/progression/fixtures"
)

func TestEnrich(t *testing.T) {
	cmdID := uuid.New()

	tests := []struct {
		name   string
		md     cqrs.Metadata
		userID string
		want   map[string]any
	}{
		{
			name:   "all fields",
			md:     cqrs.Metadata{ID: cmdID, CorrelationID: "corr-9", CausationID: "upstream"},
			userID: "user-1",
			want: map[string]any{
				cqrs.MetadataCorrelationID: "corr-9",
				cqrs.MetadataCausationID:   cmdID.String(),
				cqrs.MetadataUserID:        "user-1",
			},
		},
		{
			name: "no user",
			md:   cqrs.Metadata{ID: cmdID, CorrelationID: "corr-9"},
			want: map[string]any{
				cqrs.MetadataCorrelationID: "corr-9",
				cqrs.MetadataCausationID:   cmdID.String(),
			},
		},
		{
			name: "correlation id propagated even when empty",
			md:   cqrs.Metadata{},
			want: map[string]any{cqrs.MetadataCorrelationID: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cqrs.Enrich(tt.md, tt.userID)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s: expected %v, got %v", k, v, got[k])
				}
			}
		})
	}
}

func TestAppenderAppendsAtConsecutiveVersions(t *testing.T) {
	id := uuid.New()
	store := fixtures.NewStoreSpy().WithHistory(id.String(), fixtures.ItemAdded{Item: "a"})
	stream := cqrs.OpenStream(store, id)
	if _, err := (cqrs.Rehydrator[*fixtures.Tally]{Type: fixtures.TallyType}).Get(t.Context(), stream); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	md := cqrs.Metadata{ID: uuid.New(), CorrelationID: "corr-7", UserID: "clerk"}
	appender := cqrs.Appender{Now: func() time.Time { return now }}

	result, err := appender.Append(t.Context(), stream, md, cqrs.Events(
		fixtures.ItemAdded{Item: "b"},
		fixtures.ItemAdded{Item: "c"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.SaveCalls != 1 {
		t.Fatalf("expected a single atomic save, got %d", store.SaveCalls)
	}
	if rev, ok := store.LastSaveRevision.(cqrs.Revision); !ok || rev != 1 {
		t.Fatalf("expected save at Revision(1), got %v", store.LastSaveRevision)
	}
	if result.Outcome != cqrs.Appended || result.NextExpectedVersion != 3 || stream.Version() != 3 {
		t.Fatalf("unexpected result %+v (stream at %d)", result, stream.Version())
	}

	for i, env := range store.LastSaveEvents {
		if env.Version != uint64(i+2) {
			t.Errorf("event %d: expected version %d, got %d", i, i+2, env.Version)
		}
		if env.CorrelationID() != "corr-7" {
			t.Errorf("event %d: expected correlation id corr-7, got %q", i, env.CorrelationID())
		}
		if env.CausationID() != md.ID.String() {
			t.Errorf("event %d: expected causation id %s, got %q", i, md.ID, env.CausationID())
		}
		if env.UserID() != "clerk" {
			t.Errorf("event %d: expected user id clerk, got %q", i, env.UserID())
		}
		if !env.OccurredAt.Equal(now) || env.StreamID != id.String() || env.EventID == uuid.Nil {
			t.Errorf("event %d: unexpected envelope %+v", i, env)
		}
	}

	// each envelope owns its metadata
	store.LastSaveEvents[0].Metadata["extra"] = true
	if _, ok := store.LastSaveEvents[1].Metadata["extra"]; ok {
		t.Error("expected envelopes not to share metadata maps")
	}
}

func TestAppenderFallsBackToBuiltEnvelopes(t *testing.T) {
	store := fixtures.NewStoreSpy()
	store.SaveFn = func(ctx context.Context, events []cqrs.Envelope, _ cqrs.StreamState) (cqrs.AppendResult, error) {
		return cqrs.AppendResult{Successful: true, NextExpectedVersion: uint64(len(events))}, nil
	}
	stream := cqrs.OpenStream(store, uuid.New())

	result, err := cqrs.Appender{}.Append(t.Context(), stream, cqrs.Metadata{ID: uuid.New()}, cqrs.Events(fixtures.ItemAdded{Item: "a"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].EventID != store.LastSaveEvents[0].EventID || result.Events[0].Version != 1 {
		t.Fatalf("expected the saved envelope in the result, got %+v", result.Events)
	}
}

func TestAppenderEmptySequenceSkipsStore(t *testing.T) {
	store := fixtures.NewStoreSpy()
	stream := cqrs.OpenStream(store, uuid.New())

	result, err := cqrs.Appender{}.Append(t.Context(), stream, cqrs.Metadata{}, cqrs.Events())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Successful || result.Outcome != cqrs.NoChange {
		t.Fatalf("expected a successful no-change result, got %+v", result)
	}
	if store.SaveCalls != 0 {
		t.Fatalf("expected no save, got %d", store.SaveCalls)
	}
}

func TestAppenderIteratesOnce(t *testing.T) {
	stream := cqrs.OpenStream(fixtures.NewStoreSpy(), uuid.New())
	produced := 0
	seq := func(yield func(cqrs.Event) bool) {
		for _, item := range []string{"a", "b", "c"} {
			produced++
			if !yield(fixtures.ItemAdded{Item: item}) {
				return
			}
		}
	}

	if _, err := (cqrs.Appender{}).Append(t.Context(), stream, cqrs.Metadata{}, seq); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if produced != 3 {
		t.Fatalf("expected each event to be produced once, got %d productions", produced)
	}
}

func TestAppenderUserIDOverride(t *testing.T) {
	store := fixtures.NewStoreSpy()
	stream := cqrs.OpenStream(store, uuid.New())
	appender := cqrs.Appender{UserID: func(ctx context.Context, md cqrs.Metadata) string { return "system" }}

	if _, err := appender.Append(t.Context(), stream, cqrs.Metadata{UserID: "clerk"}, cqrs.Events(fixtures.ItemAdded{Item: "a"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.LastSaveEvents[0].UserID(); got != "system" {
		t.Fatalf("expected overridden user id, got %q", got)
	}
}

func TestAppenderRejectsNilEvent(t *testing.T) {
	store := fixtures.NewStoreSpy()
	stream := cqrs.OpenStream(store, uuid.New())

	_, err := cqrs.Appender{}.Append(t.Context(), stream, cqrs.Metadata{}, cqrs.Events(fixtures.ItemAdded{Item: "a"}, nil))
	if !errors.Is(err, cqrs.ErrInvalidEventBatch) {
		t.Fatalf("expected ErrInvalidEventBatch, got %v", err)
	}
	if store.SaveCalls != 0 {
		t.Fatal("expected nothing to be saved")
	}
}

func TestAppenderCancelledBeforeAppend(t *testing.T) {
	store := fixtures.NewStoreSpy()
	stream := cqrs.OpenStream(store, uuid.New())
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := cqrs.Appender{}.Append(ctx, stream, cqrs.Metadata{}, cqrs.Events(fixtures.ItemAdded{Item: "a"}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.SaveCalls != 0 {
		t.Fatal("expected nothing to be saved after cancellation")
	}
}
