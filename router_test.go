package progression

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func TestRouterDecodesAndRoutes(t *testing.T) {
	router := NewRouter()
	var got Command[ping]
	Handle(router, "ping", func(ctx context.Context, cmd Command[ping]) (AppendResult, error) {
		got = cmd
		return AppendResult{Successful: true}, nil
	})

	cmd := raw("ping", ping{Value: "v"}, "")
	if _, err := router.Dispatch(t.Context(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Payload.Value != "v" || got.Metadata != cmd.Metadata {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestRouterErrors(t *testing.T) {
	router := NewRouter()
	Handle(router, "ping", func(ctx context.Context, cmd Command[ping]) (AppendResult, error) {
		return AppendResult{Successful: true}, nil
	})

	tests := []struct {
		name string
		cmd  RawCommand
		want error
	}{
		{"unknown name", raw("pong", ping{}, ""), ErrUnknownCommand},
		{"malformed payload", RawCommand{Metadata: Metadata{Name: "ping"}, Payload: json.RawMessage(`{"value":`)}, ErrInvalidPayload},
		{"empty payload", RawCommand{Metadata: Metadata{Name: "ping"}}, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := router.Dispatch(t.Context(), tt.cmd); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRouterDuplicatePanics(t *testing.T) {
	router := NewRouter()
	h := func(ctx context.Context, cmd Command[ping]) (AppendResult, error) { return AppendResult{}, nil }
	Handle(router, "ping", h)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a duplicate registration")
		}
	}()
	Handle(router, "ping", h)
}

func TestRouterMiddlewareOrder(t *testing.T) {
	router := NewRouter()
	var calls []string
	Handle(router, "ping", func(ctx context.Context, cmd Command[ping]) (AppendResult, error) {
		calls = append(calls, "handler")
		return AppendResult{Successful: true}, nil
	})
	trace := func(name string) Middleware {
		return func(next CommandHandler[json.RawMessage]) CommandHandler[json.RawMessage] {
			return func(ctx context.Context, cmd RawCommand) (AppendResult, error) {
				calls = append(calls, name)
				return next(ctx, cmd)
			}
		}
	}
	router.Use(trace("outer"), trace("inner"))

	if _, err := router.Dispatch(t.Context(), raw("ping", ping{}, "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"outer", "inner", "handler"}; !slices.Equal(calls, want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	if names := router.Names(); !slices.Equal(names, []string{"ping"}) {
		t.Fatalf("unexpected names %v", names)
	}
}
