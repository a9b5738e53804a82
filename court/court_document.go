package court

import (
	"iter"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// CourtDocument is a document attached to court proceedings.
type CourtDocument struct {
	ID       uuid.UUID `json:"id"`
	Present  bool      `json:"present"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
}

var CourtDocumentType = es.AggregateType[*CourtDocument]{
	Name: "court.CourtDocument",
	New:  func(id uuid.UUID) *CourtDocument { return &CourtDocument{ID: id} },
}

func (d *CourtDocument) Apply(ev es.Event) error {
	return es.ApplyWith(ev,
		es.On(func(e CourtDocumentAdded) {
			d.Present = true
			d.Name = e.Name
			d.Category = e.DocumentCategory
		}),
		es.On(func(CourtDocumentRemoved) { d.Present = false }),
	)
}

// Add returns nil when the document is already present.
func (d *CourtDocument) Add(name, category string) (iter.Seq[es.Event], error) {
	if d.Present {
		return nil, nil
	}
	return es.Events(CourtDocumentAdded{
		CourtDocumentID:  d.ID,
		Name:             name,
		DocumentCategory: category,
	}), nil
}

func (d *CourtDocument) Remove() (iter.Seq[es.Event], error) {
	if !d.Present {
		return nil, ErrCourtDocumentAbsent
	}
	return es.Events(CourtDocumentRemoved{CourtDocumentID: d.ID}), nil
}
