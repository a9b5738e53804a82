package fixtures

import (
	"encoding/json"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// AddItems targets a Tally by id.
type AddItems struct {
	TallyID uuid.UUID `json:"tallyId"`
	Items   []string  `json:"items"`
}

// RemoveItem targets a Tally by id.
type RemoveItem struct {
	TallyID uuid.UUID `json:"tallyId"`
	Item    string    `json:"item"`
}

// CommandBuilder provides a fluent API for constructing commands.
type CommandBuilder[P any] struct {
	md      es.Metadata
	payload P
}

// NewTestCommand creates a CommandBuilder with a fresh command id and a
// correlation id of "corr-1".
func NewTestCommand[P any](name string, payload P) *CommandBuilder[P] {
	return &CommandBuilder[P]{
		md: es.Metadata{
			ID:            uuid.New(),
			Name:          name,
			CorrelationID: "corr-1",
		},
		payload: payload,
	}
}

// WithID sets the command id.
func (b *CommandBuilder[P]) WithID(id uuid.UUID) *CommandBuilder[P] {
	b.md.ID = id
	return b
}

// WithCorrelationID sets the correlation id.
func (b *CommandBuilder[P]) WithCorrelationID(id string) *CommandBuilder[P] {
	b.md.CorrelationID = id
	return b
}

// WithUserID sets the user id.
func (b *CommandBuilder[P]) WithUserID(id string) *CommandBuilder[P] {
	b.md.UserID = id
	return b
}

// WithStreamHint sets the stream hint.
func (b *CommandBuilder[P]) WithStreamHint(hint string) *CommandBuilder[P] {
	b.md.StreamHint = hint
	return b
}

// Build constructs the command.
func (b *CommandBuilder[P]) Build() es.Command[P] {
	return es.Command[P]{Metadata: b.md, Payload: b.payload}
}

// Raw constructs the command with its payload encoded as JSON.
func (b *CommandBuilder[P]) Raw() es.RawCommand {
	data, err := json.Marshal(b.payload)
	if err != nil {
		panic(err)
	}
	return es.RawCommand{Metadata: b.md, Payload: data}
}
