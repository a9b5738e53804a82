package progression

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Appender turns the events produced by a mutation into enriched envelopes
// and appends them to a stream in one atomic write.
type Appender struct {
	// Now stamps OccurredAt. Defaults to time.Now.
	Now func() time.Time

	// UserID, when set, computes the user id recorded on every envelope in
	// place of the one carried by the command.
	UserID func(ctx context.Context, md Metadata) string
}

// Enrich builds the metadata recorded on every event caused by the command
// described by md. The correlation id is always propagated, the causation id
// is the command id and the user id is copied when present. Nothing else is
// synthesized.
func Enrich(md Metadata, userID string) map[string]any {
	out := map[string]any{
		MetadataCorrelationID: md.CorrelationID,
	}
	if md.ID != uuid.Nil {
		out[MetadataCausationID] = md.ID.String()
	}
	if userID != "" {
		out[MetadataUserID] = userID
	}
	return out
}

// Append consumes events exactly once and appends the enriched envelopes at
// the versions following the one stream observed. An empty sequence succeeds
// with Outcome NoChange and never reaches the store.
func (a Appender) Append(ctx context.Context, stream *Stream, source Metadata, events iter.Seq[Event]) (AppendResult, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	userID := source.UserID
	if a.UserID != nil {
		userID = a.UserID(ctx, source)
	}
	metadata := Enrich(source, userID)
	occurredAt := now()

	var envelopes []Envelope
	next := stream.Version()
	for event := range events {
		if event == nil {
			return AppendResult{StreamID: stream.Name()}, fmt.Errorf("stream %s: nil event at position %d: %w", stream.ID(), len(envelopes), ErrInvalidEventBatch)
		}
		next++
		envelopes = append(envelopes, Envelope{
			EventID:    uuid.New(),
			StreamID:   stream.Name(),
			Metadata:   maps.Clone(metadata),
			Event:      event,
			Version:    next,
			OccurredAt: occurredAt,
		})
	}

	if len(envelopes) == 0 {
		return AppendResult{
			Successful:          true,
			StreamID:            stream.Name(),
			NextExpectedVersion: stream.Version(),
			Outcome:             NoChange,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return AppendResult{StreamID: stream.Name()}, err
	}

	result, err := stream.Append(ctx, envelopes)
	if err != nil {
		return AppendResult{StreamID: stream.Name(), NextExpectedVersion: stream.Version()}, err
	}
	result.Successful = true
	result.StreamID = stream.Name()
	result.Outcome = Appended
	if len(result.Events) == 0 {
		result.Events = envelopes
	}
	return result, nil
}
