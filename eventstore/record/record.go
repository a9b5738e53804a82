// Package record converts envelopes to and from the flat JSON rows persisted
// by the durable event stores.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// Record is the persisted form of an Envelope. Data and Metadata hold JSON.
type Record struct {
	EventID       uuid.UUID       `json:"eventId"`
	StreamID      string          `json:"streamId"`
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data"`
	Metadata      json.RawMessage `json:"metadata"`
	Version       uint64          `json:"version"`
	GlobalVersion uint64          `json:"globalVersion"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// FromEnvelope encodes env. Version and GlobalVersion are copied as is; stores
// assign them before writing.
func FromEnvelope(env es.Envelope) (Record, error) {
	data, err := json.Marshal(env.Event)
	if err != nil {
		return Record{}, fmt.Errorf("encode event %s: %w", env.Event.EventType(), err)
	}
	metadata := env.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	md, err := json.Marshal(metadata)
	if err != nil {
		return Record{}, fmt.Errorf("encode metadata of event %s: %w", env.EventID, err)
	}
	return Record{
		EventID:       env.EventID,
		StreamID:      env.StreamID,
		Type:          env.Event.EventType(),
		Data:          data,
		Metadata:      md,
		Version:       env.Version,
		GlobalVersion: env.GlobalVersion,
		OccurredAt:    env.OccurredAt.UTC(),
	}, nil
}

// Envelope decodes r through the event registry.
func (r Record) Envelope() (*es.Envelope, error) {
	ev, err := es.DecodeEvent(r.Type, r.Data)
	if err != nil {
		return nil, fmt.Errorf("decode event %s of stream %q: %w", r.EventID, r.StreamID, err)
	}
	metadata := map[string]any{}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of event %s: %w", r.EventID, err)
		}
	}
	return &es.Envelope{
		EventID:       r.EventID,
		StreamID:      r.StreamID,
		Metadata:      metadata,
		Event:         ev,
		Version:       r.Version,
		GlobalVersion: r.GlobalVersion,
		OccurredAt:    r.OccurredAt,
	}, nil
}

// SameStream returns the stream id shared by every envelope of a batch, or
// ErrInvalidEventBatch when the batch mixes streams or holds a nil event.
func SameStream(events []es.Envelope) (string, error) {
	streamID := events[0].StreamID
	for i, env := range events {
		if env.StreamID != streamID {
			return "", fmt.Errorf(
				"save events to stream %q: %w: event %d has different stream ID %q",
				streamID, es.ErrInvalidEventBatch, i, env.StreamID,
			)
		}
		if env.Event == nil {
			return "", fmt.Errorf("save events to stream %q: %w: event %d is nil", streamID, es.ErrInvalidEventBatch, i)
		}
	}
	return streamID, nil
}
