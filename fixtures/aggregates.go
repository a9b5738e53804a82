package fixtures

import (
	"errors"
	"iter"
	"slices"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// ErrItemMissing is returned by Tally.Remove for an item it does not hold.
var ErrItemMissing = errors.New("item missing")

// Tally is a small aggregate holding a list of items. Adding an item it
// already holds is a no-op; removing one it does not hold is rejected.
type Tally struct {
	ID      uuid.UUID `json:"id"`
	Items   []string  `json:"items"`
	Applied int       `json:"applied"`
}

// TallyType is the AggregateType of Tally.
var TallyType = es.AggregateType[*Tally]{
	Name: "fixtures.Tally",
	New:  func(id uuid.UUID) *Tally { return &Tally{ID: id} },
}

func (t *Tally) Apply(ev es.Event) error {
	t.Applied++
	return es.ApplyWith(ev,
		es.On(func(e ItemAdded) { t.Items = append(t.Items, e.Item) }),
		es.On(func(e ItemRemoved) {
			t.Items = slices.DeleteFunc(t.Items, func(s string) bool { return s == e.Item })
		}),
		es.On(func(TestEvent) {}),
	)
}

// Add emits one ItemAdded per item not held yet. It returns nil when every
// item is already held and an empty sequence when items is empty.
func (t *Tally) Add(items ...string) (iter.Seq[es.Event], error) {
	var events []es.Event
	for _, item := range items {
		if !slices.Contains(t.Items, item) {
			events = append(events, ItemAdded{Item: item})
		}
	}
	if len(items) > 0 && len(events) == 0 {
		return nil, nil
	}
	return es.Events(events...), nil
}

// Remove emits ItemRemoved or fails with ErrItemMissing.
func (t *Tally) Remove(item string) (iter.Seq[es.Event], error) {
	if !slices.Contains(t.Items, item) {
		return nil, ErrItemMissing
	}
	return es.Events(ItemRemoved{Item: item}), nil
}
