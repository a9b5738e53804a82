package progression

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ---- Test Stubs ----

type ping struct {
	Value string `json:"value"`
}

func raw(name string, payload any, hint string) RawCommand {
	data, _ := json.Marshal(payload)
	return RawCommand{
		Metadata: Metadata{ID: uuid.New(), Name: name, CorrelationID: "corr", StreamHint: hint},
		Payload:  data,
	}
}

// ---- Tests ----

func TestCommandBus_Success(t *testing.T) {
	router := NewRouter()
	Handle(router, "ping", func(ctx context.Context, cmd Command[ping]) (AppendResult, error) {
		return AppendResult{Successful: true, StreamID: cmd.Payload.Value}, nil
	})
	bus := NewCommandBus(router, 10, 2)
	defer bus.Stop()

	res, err := bus.Dispatch(t.Context(), raw("ping", ping{Value: "abc"}, ""))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !res.Successful || res.StreamID != "abc" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCommandBus_NoHandler(t *testing.T) {
	bus := NewCommandBus(NewRouter(), 10, 1)
	defer bus.Stop()

	_, err := bus.Dispatch(t.Context(), raw("missing", ping{}, ""))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestCommandBus_HandlerPanic(t *testing.T) {
	router := NewRouter()
	Handle(router, "ping", func(ctx context.Context, cmd Command[ping]) (AppendResult, error) {
		panic("boom")
	})
	bus := NewCommandBus(router, 10, 1)
	defer bus.Stop()

	_, err := bus.Dispatch(t.Context(), raw("ping", ping{}, ""))
	if err == nil {
		t.Fatal("expected panic recovery error")
	}

	// the worker survives the panic
	Handle(router, "pong", func(ctx context.Context, cmd Command[ping]) (AppendResult, error) {
		return AppendResult{Successful: true}, nil
	})
	if _, err := bus.Dispatch(t.Context(), raw("pong", ping{}, "")); err != nil {
		t.Fatalf("expected the worker to keep running, got %v", err)
	}
}

func TestCommandBus_SerializesSameHint(t *testing.T) {
	router := NewRouter()
	var (
		mu      sync.Mutex
		running int
		maxSeen int
	)
	Handle(router, "ping", func(ctx context.Context, cmd Command[ping]) (AppendResult, error) {
		mu.Lock()
		running++
		if running > maxSeen {
			maxSeen = running
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return AppendResult{Successful: true}, nil
	})
	bus := NewCommandBus(router, 10, 4)
	defer bus.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := bus.Dispatch(t.Context(), raw("ping", ping{}, "stream-1")); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected commands sharing a hint to run one at a time, saw %d in parallel", maxSeen)
	}
}

func TestCommandBus_ContextCancelled(t *testing.T) {
	router := NewRouter()
	release := make(chan struct{})
	Handle(router, "ping", func(ctx context.Context, cmd Command[ping]) (AppendResult, error) {
		<-release
		return AppendResult{Successful: true}, nil
	})
	bus := NewCommandBus(router, 0, 1)
	defer bus.Stop()
	defer close(release)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	if _, err := bus.Dispatch(ctx, raw("ping", ping{}, "")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestCommandBus_Stop(t *testing.T) {
	bus := NewCommandBus(NewRouter(), 1, 1)
	bus.Stop()
	bus.Stop()

	if _, err := bus.Dispatch(t.Context(), raw("ping", ping{}, "")); !errors.Is(err, ErrBusStopped) {
		t.Fatalf("expected ErrBusStopped, got %v", err)
	}
}
