package progression

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Metadata is the transport metadata attached to an inbound command.
//
// Name identifies the command type and drives routing. ID is the command's own
// identifier and becomes the causation id of every event the command produces.
// StreamHint is an optional routing hint used to serialise commands that
// target the same stream; it never participates in stream resolution.
type Metadata struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	CorrelationID string    `json:"correlationId"`
	CausationID   string    `json:"causationId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	StreamHint    string    `json:"streamHint,omitempty"`
}

// Command is an immutable envelope around a typed command payload.
type Command[P any] struct {
	Metadata Metadata `json:"metadata"`
	Payload  P        `json:"payload"`
}

// RawCommand is a command whose payload has not been decoded yet, as
// delivered by a transport.
type RawCommand = Command[json.RawMessage]

// NewCommand builds a command with a fresh id. The correlation id defaults to
// the command id when none is given.
func NewCommand[P any](name string, payload P, correlationID string) Command[P] {
	id := uuid.New()
	if correlationID == "" {
		correlationID = id.String()
	}
	return Command[P]{
		Metadata: Metadata{
			ID:            id,
			Name:          name,
			CorrelationID: correlationID,
		},
		Payload: payload,
	}
}
