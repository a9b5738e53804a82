package court

import (
	"time"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

type CourtDocumentAdded struct {
	CourtDocumentID  uuid.UUID `json:"courtDocumentId"`
	Name             string    `json:"name"`
	DocumentCategory string    `json:"documentCategory"`
}

type CourtDocumentRemoved struct {
	CourtDocumentID uuid.UUID `json:"courtDocumentId"`
}

type ProsecutionCaseInitiated struct {
	ProsecutionCaseID uuid.UUID   `json:"prosecutionCaseId"`
	URN               string      `json:"urn"`
	Defendants        []Defendant `json:"defendants"`
}

type DefendantUpdated struct {
	ProsecutionCaseID uuid.UUID `json:"prosecutionCaseId"`
	Defendant         Defendant `json:"defendant"`
}

type DocumentUploaded struct {
	UploadID      uuid.UUID `json:"uploadId"`
	FileServiceID uuid.UUID `json:"fileServiceId"`
	MaterialID    uuid.UUID `json:"materialId"`
}

type HearingListed struct {
	HearingID     uuid.UUID `json:"hearingId"`
	CourtCentreID uuid.UUID `json:"courtCentreId"`
	StartAt       time.Time `json:"startAt"`
}

type HearingListedUnallocated struct {
	HearingID        uuid.UUID `json:"hearingId"`
	CourtCentreID    uuid.UUID `json:"courtCentreId"`
	EstimatedMinutes int       `json:"estimatedMinutes"`
}

type HearingResulted struct {
	HearingID uuid.UUID `json:"hearingId"`
	Results   []string  `json:"results"`
	Final     bool      `json:"final"`
}

type HearingClosed struct {
	HearingID uuid.UUID `json:"hearingId"`
}

func (CourtDocumentAdded) EventType() string       { return "progression.event.court-document-added" }
func (CourtDocumentRemoved) EventType() string     { return "progression.event.court-document-removed" }
func (ProsecutionCaseInitiated) EventType() string { return "progression.event.prosecution-case-initiated" }
func (DefendantUpdated) EventType() string         { return "progression.event.defendant-updated" }
func (DocumentUploaded) EventType() string         { return "progression.event.document-uploaded" }
func (HearingListed) EventType() string            { return "progression.event.hearing-listed" }
func (HearingListedUnallocated) EventType() string { return "progression.event.hearing-listed-unallocated" }
func (HearingResulted) EventType() string          { return "progression.event.hearing-resulted" }
func (HearingClosed) EventType() string            { return "progression.event.hearing-closed" }

// RegisterEvents makes every court event decodable by the event stores.
// It is safe to call more than once.
func RegisterEvents() {
	es.RegisterEvent[CourtDocumentAdded]()
	es.RegisterEvent[CourtDocumentRemoved]()
	es.RegisterEvent[ProsecutionCaseInitiated]()
	es.RegisterEvent[DefendantUpdated]()
	es.RegisterEvent[DocumentUploaded]()
	es.RegisterEvent[HearingListed]()
	es.RegisterEvent[HearingListedUnallocated]()
	es.RegisterEvent[HearingResulted]()
	es.RegisterEvent[HearingClosed]()
}
