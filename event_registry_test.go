package progression

import (
	"errors"
	"testing"
)

type registeredValue struct {
	N int `json:"n"`
}

func (registeredValue) EventType() string { return "test.RegisteredValue" }

type registeredPointer struct {
	S string `json:"s"`
}

func (*registeredPointer) EventType() string { return "test.RegisteredPointer" }

type clashing struct{}

func (clashing) EventType() string { return "test.RegisteredValue" }

func TestRegisterAndDecodeEvent(t *testing.T) {
	RegisterEvent[registeredValue]()
	RegisterEvent[registeredValue]()
	RegisterEvent[*registeredPointer]()

	ev, err := DecodeEvent("test.RegisteredValue", []byte(`{"n":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := ev.(registeredValue); !ok || v.N != 3 {
		t.Fatalf("expected registeredValue{3}, got %#v", ev)
	}

	ev, err = DecodeEvent("test.RegisteredPointer", []byte(`{"s":"x"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p, ok := ev.(*registeredPointer); !ok || p.S != "x" {
		t.Fatalf("expected *registeredPointer{x}, got %#v", ev)
	}

	if _, err := NewEventByName("test.RegisteredValue"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeEventErrors(t *testing.T) {
	if _, err := DecodeEvent("test.Missing", []byte(`{}`)); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	RegisterEvent[registeredValue]()
	if _, err := DecodeEvent("test.RegisteredValue", []byte(`not json`)); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestRegisterEventClashPanics(t *testing.T) {
	RegisterEvent[registeredValue]()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a clashing registration")
		}
	}()
	RegisterEvent[clashing]()
}
