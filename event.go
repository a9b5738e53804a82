package progression

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	EventType() string
}

// Metadata keys written on every enriched envelope.
const (
	MetadataCorrelationID = "correlationId"
	MetadataCausationID   = "causationId"
	MetadataUserID        = "userId"
)

// Envelope is a domain event wrapped with the metadata inherited from the
// command that produced it. It is the unit an EventStore persists.
type Envelope struct {
	EventID       uuid.UUID
	StreamID      string
	Metadata      map[string]any
	Event         Event
	Version       uint64
	GlobalVersion uint64
	OccurredAt    time.Time
}

// CorrelationID returns the correlation id recorded on the envelope.
func (e *Envelope) CorrelationID() string {
	s, _ := e.Metadata[MetadataCorrelationID].(string)
	return s
}

// CausationID returns the id of the command that caused the event.
func (e *Envelope) CausationID() string {
	s, _ := e.Metadata[MetadataCausationID].(string)
	return s
}

// UserID returns the user id recorded on the envelope, if any.
func (e *Envelope) UserID() string {
	s, _ := e.Metadata[MetadataUserID].(string)
	return s
}
