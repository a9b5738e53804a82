package court

import (
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// Hearing tracks the listing and resulting of one court hearing.
type Hearing struct {
	ID               uuid.UUID `json:"id"`
	Listed           bool      `json:"listed"`
	Unallocated      bool      `json:"unallocated"`
	CourtCentreID    uuid.UUID `json:"courtCentreId"`
	StartAt          time.Time `json:"startAt"`
	EstimatedMinutes int       `json:"estimatedMinutes"`
	Resulted         bool      `json:"resulted"`
	Closed           bool      `json:"closed"`
	Results          []string  `json:"results"`
}

var HearingType = es.AggregateType[*Hearing]{
	Name: "court.Hearing",
	New:  func(id uuid.UUID) *Hearing { return &Hearing{ID: id} },
}

func (h *Hearing) Apply(ev es.Event) error {
	return es.ApplyWith(ev,
		es.On(func(e HearingListed) {
			h.Listed = true
			h.Unallocated = false
			h.CourtCentreID = e.CourtCentreID
			h.StartAt = e.StartAt
		}),
		es.On(func(e HearingListedUnallocated) {
			h.Listed = false
			h.Unallocated = true
			h.CourtCentreID = e.CourtCentreID
			h.EstimatedMinutes = e.EstimatedMinutes
		}),
		es.On(func(e HearingResulted) {
			h.Resulted = true
			h.Results = slices.Clone(e.Results)
		}),
		es.On(func(HearingClosed) { h.Closed = true }),
	)
}

// List allocates the hearing to a court centre and start time. Listing it
// again identically returns nil.
func (h *Hearing) List(courtCentreID uuid.UUID, startAt time.Time) (iter.Seq[es.Event], error) {
	if h.Resulted {
		return nil, ErrHearingAlreadyResulted
	}
	if h.Listed && h.CourtCentreID == courtCentreID && h.StartAt.Equal(startAt) {
		return nil, nil
	}
	return es.Events(HearingListed{
		HearingID:     h.ID,
		CourtCentreID: courtCentreID,
		StartAt:       startAt,
	}), nil
}

func (h *Hearing) ListUnallocated(courtCentreID uuid.UUID, estimatedMinutes int) (iter.Seq[es.Event], error) {
	if h.Resulted {
		return nil, ErrHearingAlreadyResulted
	}
	if h.Unallocated && h.CourtCentreID == courtCentreID && h.EstimatedMinutes == estimatedMinutes {
		return nil, nil
	}
	return es.Events(HearingListedUnallocated{
		HearingID:        h.ID,
		CourtCentreID:    courtCentreID,
		EstimatedMinutes: estimatedMinutes,
	}), nil
}

// Result records the hearing outcome and closes the hearing when final.
func (h *Hearing) Result(results []string, final bool) (iter.Seq[es.Event], error) {
	if !h.Listed && !h.Unallocated {
		return nil, ErrHearingNotListed
	}
	if h.Resulted {
		return nil, ErrHearingAlreadyResulted
	}
	events := []es.Event{HearingResulted{HearingID: h.ID, Results: results, Final: final}}
	if final {
		events = append(events, HearingClosed{HearingID: h.ID})
	}
	return es.Events(events...), nil
}
