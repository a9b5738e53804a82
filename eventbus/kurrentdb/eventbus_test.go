package kurrentdb_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	cqrs "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventbus/kurrentdb"
	kstore "github.com/terraskye/progression/eventstore/kurrentdb"
	"github.com/terraskye/progression/fixtures"
)

func TestSubscriptionReceivesCommittedEvents(t *testing.T) {
	url := os.Getenv("PROGRESSION_TEST_KURRENTDB_URL")
	if url == "" {
		t.Skip("PROGRESSION_TEST_KURRENTDB_URL not set")
	}

	client, err := kstore.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	store := kstore.NewEventStore(client)
	defer store.Close()

	bus := kurrentdb.NewEventBus(client)
	defer bus.Close()

	stream := uuid.NewString()
	received := make(chan *cqrs.Envelope, 4)
	handler := cqrs.NewEventHandlerFunc(func(ctx context.Context, env *cqrs.Envelope) error {
		if env.StreamID == stream {
			received <- env
		}
		return nil
	})
	if err := bus.Subscribe(t.Context(), "test", handler, kurrentdb.WithFilterStream(stream)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// let the subscription reach the end of $all before writing
	time.Sleep(500 * time.Millisecond)

	if _, err := store.Save(t.Context(), fixtures.Batch(stream, 0, fixtures.ItemAdded{Item: "a"}), cqrs.NoStream{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	select {
	case env := <-received:
		if env.Version != 1 || env.CorrelationID() != "corr-1" {
			t.Fatalf("unexpected envelope %+v", env)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the subscription")
	}
}
