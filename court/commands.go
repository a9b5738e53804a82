package court

import (
	"time"

	"github.com/google/uuid"
)

// Command names routed by Register.
const (
	AddCourtDocumentCommand       = "progression.add-court-document"
	RemoveCourtDocumentCommand    = "progression.remove-court-document"
	UpdateDefendantsCommand       = "progression.update-defendants"
	InitiateProsecutionCommand    = "progression.initiate-prosecution"
	RecordUploadedDocumentCommand = "progression.record-uploaded-document"
	ListHearingCommand            = "progression.list-hearing"
	ListUnallocatedHearingCommand = "progression.list-unallocated-hearing"
	ResultHearingCommand          = "progression.result-hearing"
)

type AddCourtDocument struct {
	CourtDocumentID  uuid.UUID `json:"courtDocumentId"`
	Name             string    `json:"name"`
	DocumentCategory string    `json:"documentCategory"`
}

type RemoveCourtDocument struct {
	CourtDocumentID uuid.UUID `json:"courtDocumentId"`
}

// UpdateDefendants carries defendants of a single case. The case is taken
// from the first defendant.
type UpdateDefendants struct {
	Defendants []Defendant `json:"defendants"`
}

type InitiateProsecution struct {
	URN        string      `json:"urn"`
	Defendants []Defendant `json:"defendants"`
}

type RecordUploadedDocument struct {
	FileServiceID uuid.UUID `json:"fileServiceId"`
	MaterialID    uuid.UUID `json:"materialId"`
}

// ListHearing lists a hearing at a court centre. Unallocated listings are
// handled by ListUnallocatedHearing and skipped here.
type ListHearing struct {
	HearingID     uuid.UUID `json:"hearingId"`
	CourtCentreID uuid.UUID `json:"courtCentreId"`
	StartAt       time.Time `json:"startAt"`
	Unallocated   bool      `json:"unallocated"`
}

type ListUnallocatedHearing struct {
	HearingID        uuid.UUID `json:"hearingId"`
	CourtCentreID    uuid.UUID `json:"courtCentreId"`
	EstimatedMinutes int       `json:"estimatedMinutes"`
}

type ResultHearing struct {
	HearingID uuid.UUID `json:"hearingId"`
	Results   []string  `json:"results"`
	Final     bool      `json:"final"`
}
