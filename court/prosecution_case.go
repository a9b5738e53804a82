package court

import (
	"iter"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// Defendant is a person charged in a prosecution case.
type Defendant struct {
	ID                uuid.UUID `json:"id"`
	ProsecutionCaseID uuid.UUID `json:"prosecutionCaseId"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	DateOfBirth       string    `json:"dateOfBirth,omitempty"`
}

// ProsecutionCase holds the defendants of one case.
type ProsecutionCase struct {
	ID         uuid.UUID               `json:"id"`
	Initiated  bool                    `json:"initiated"`
	URN        string                  `json:"urn"`
	Defendants map[uuid.UUID]Defendant `json:"defendants"`
}

var ProsecutionCaseType = es.AggregateType[*ProsecutionCase]{
	Name: "court.ProsecutionCase",
	New: func(id uuid.UUID) *ProsecutionCase {
		return &ProsecutionCase{ID: id, Defendants: make(map[uuid.UUID]Defendant)}
	},
}

func (c *ProsecutionCase) Apply(ev es.Event) error {
	return es.ApplyWith(ev,
		es.On(func(e ProsecutionCaseInitiated) {
			c.Initiated = true
			c.URN = e.URN
			for _, d := range e.Defendants {
				c.Defendants[d.ID] = d
			}
		}),
		es.On(func(e DefendantUpdated) { c.Defendants[e.Defendant.ID] = e.Defendant }),
	)
}

// Initiate opens the case under its own id. Defendants are attached to it
// whatever parent id they carried.
func (c *ProsecutionCase) Initiate(urn string, defendants []Defendant) (iter.Seq[es.Event], error) {
	if c.Initiated {
		return nil, ErrCaseAlreadyInitiated
	}
	attached := make([]Defendant, len(defendants))
	for i, d := range defendants {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.ProsecutionCaseID = c.ID
		attached[i] = d
	}
	return es.Events(ProsecutionCaseInitiated{
		ProsecutionCaseID: c.ID,
		URN:               urn,
		Defendants:        attached,
	}), nil
}

// UpdateDefendants emits one DefendantUpdated per defendant whose details
// changed, and an empty sequence when none did.
func (c *ProsecutionCase) UpdateDefendants(defendants []Defendant) (iter.Seq[es.Event], error) {
	if !c.Initiated {
		return nil, ErrCaseNotInitiated
	}
	var events []es.Event
	for _, d := range defendants {
		d.ProsecutionCaseID = c.ID
		if current, ok := c.Defendants[d.ID]; ok && current == d {
			continue
		}
		events = append(events, DefendantUpdated{ProsecutionCaseID: c.ID, Defendant: d})
	}
	return es.Events(events...), nil
}
