package fixtures

import (
	"time"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// EnvelopeOption is a functional option for configuring an Envelope.
type EnvelopeOption func(*es.Envelope)

// NewEnvelope creates an Envelope at version 1 with the given event and options.
func NewEnvelope(event es.Event, opts ...EnvelopeOption) *es.Envelope {
	env := &es.Envelope{
		EventID:       uuid.New(),
		StreamID:      "stream-1",
		Event:         event,
		Version:       1,
		GlobalVersion: 1,
		OccurredAt:    time.Now(),
		Metadata:      make(map[string]any),
	}

	for _, opt := range opts {
		opt(env)
	}

	return env
}

// WithStreamID sets the stream id.
func WithStreamID(id string) EnvelopeOption {
	return func(e *es.Envelope) {
		e.StreamID = id
	}
}

// WithVersion sets the stream version.
func WithVersion(v uint64) EnvelopeOption {
	return func(e *es.Envelope) {
		e.Version = v
	}
}

// WithGlobalVersion sets the global version.
func WithGlobalVersion(v uint64) EnvelopeOption {
	return func(e *es.Envelope) {
		e.GlobalVersion = v
	}
}

// WithMetadata sets a metadata key.
func WithMetadata(key string, value any) EnvelopeOption {
	return func(e *es.Envelope) {
		e.Metadata[key] = value
	}
}

// EnvelopesFor wraps events as the history of streamID, at versions 1..n.
func EnvelopesFor(streamID string, events ...es.Event) []*es.Envelope {
	envelopes := make([]*es.Envelope, len(events))
	for i, ev := range events {
		envelopes[i] = NewEnvelope(ev,
			WithStreamID(streamID),
			WithVersion(uint64(i+1)),
			WithGlobalVersion(uint64(i+1)),
		)
	}
	return envelopes
}

// Batch builds a save batch for streamID whose versions follow after.
func Batch(streamID string, after uint64, events ...es.Event) []es.Envelope {
	batch := make([]es.Envelope, len(events))
	for i, ev := range events {
		batch[i] = *NewEnvelope(ev,
			WithStreamID(streamID),
			WithVersion(after+uint64(i)+1),
			WithMetadata(es.MetadataCorrelationID, "corr-1"),
		)
	}
	return batch
}
