package fixtures

import (
	"fmt"

	es "github.com/terraskye/progression"
)

// TestEvent is a configurable test event implementing the Event interface.
type TestEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (e TestEvent) EventType() string { return e.Type }

// TestEventBuilder builds batches of test events.
type TestEventBuilder struct {
	typ string
}

// NewTestEvent creates a new TestEventBuilder with sensible defaults.
func NewTestEvent() *TestEventBuilder {
	return &TestEventBuilder{typ: "TestEvent"}
}

// BuildN creates n events with sequential data.
func (b *TestEventBuilder) BuildN(n int) []es.Event {
	events := make([]es.Event, n)
	for i := 0; i < n; i++ {
		events[i] = TestEvent{Type: b.typ, Data: fmt.Sprintf("event-%d", i+1)}
	}
	return events
}

// ItemAdded and ItemRemoved are the events applied by Tally.
type ItemAdded struct {
	Item string `json:"item"`
}

type ItemRemoved struct {
	Item string `json:"item"`
}

func (ItemAdded) EventType() string   { return "fixtures.ItemAdded" }
func (ItemRemoved) EventType() string { return "fixtures.ItemRemoved" }

func init() {
	es.RegisterEvent[TestEvent]()
	es.RegisterEvent[ItemAdded]()
	es.RegisterEvent[ItemRemoved]()
}
