// Package court holds the progression aggregates and the table routing each
// command name to its dispatcher.
package court

import (
	"iter"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// Register adds a dispatcher for every court command to router. All
// dispatchers share store and opts.
func Register(router *es.Router, store es.EventStore, opts ...es.DispatcherOption) {
	RegisterEvents()

	es.Handle(router, AddCourtDocumentCommand, es.NewDispatcher(store, CourtDocumentType,
		es.Direct(func(p AddCourtDocument) uuid.UUID { return p.CourtDocumentID }),
		func(d *CourtDocument, p AddCourtDocument) (iter.Seq[es.Event], error) {
			return d.Add(p.Name, p.DocumentCategory)
		},
		opts...,
	))

	es.Handle(router, RemoveCourtDocumentCommand, es.NewDispatcher(store, CourtDocumentType,
		es.Direct(func(p RemoveCourtDocument) uuid.UUID { return p.CourtDocumentID }),
		func(d *CourtDocument, _ RemoveCourtDocument) (iter.Seq[es.Event], error) {
			return d.Remove()
		},
		opts...,
	))

	es.Handle(router, UpdateDefendantsCommand, es.NewDispatcher(store, ProsecutionCaseType,
		es.FirstOf(
			func(p UpdateDefendants) []Defendant { return p.Defendants },
			func(d Defendant) uuid.UUID { return d.ProsecutionCaseID },
		),
		func(c *ProsecutionCase, p UpdateDefendants) (iter.Seq[es.Event], error) {
			return c.UpdateDefendants(p.Defendants)
		},
		opts...,
	))

	es.Handle(router, InitiateProsecutionCommand, es.NewDispatcher(store, ProsecutionCaseType,
		es.Fresh[InitiateProsecution](),
		func(c *ProsecutionCase, p InitiateProsecution) (iter.Seq[es.Event], error) {
			return c.Initiate(p.URN, p.Defendants)
		},
		opts...,
	))

	es.Handle(router, RecordUploadedDocumentCommand, es.NewDispatcher(store, UploadedDocumentType,
		es.Fresh[RecordUploadedDocument](),
		func(u *UploadedDocument, p RecordUploadedDocument) (iter.Seq[es.Event], error) {
			return u.Record(p.FileServiceID, p.MaterialID)
		},
		opts...,
	))

	es.Handle(router, ListHearingCommand, es.NewDispatcher(store, HearingType,
		es.Bypass(
			func(p ListHearing) bool { return p.Unallocated },
			es.Direct(func(p ListHearing) uuid.UUID { return p.HearingID }),
		),
		func(h *Hearing, p ListHearing) (iter.Seq[es.Event], error) {
			return h.List(p.CourtCentreID, p.StartAt)
		},
		opts...,
	))

	es.Handle(router, ListUnallocatedHearingCommand, es.NewDispatcher(store, HearingType,
		es.Direct(func(p ListUnallocatedHearing) uuid.UUID { return p.HearingID }),
		func(h *Hearing, p ListUnallocatedHearing) (iter.Seq[es.Event], error) {
			return h.ListUnallocated(p.CourtCentreID, p.EstimatedMinutes)
		},
		opts...,
	))

	es.Handle(router, ResultHearingCommand, es.NewDispatcher(store, HearingType,
		es.Direct(func(p ResultHearing) uuid.UUID { return p.HearingID }),
		func(h *Hearing, p ResultHearing) (iter.Seq[es.Event], error) {
			return h.Result(p.Results, p.Final)
		},
		opts...,
	))
}
