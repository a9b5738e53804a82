package progression

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

// Define constants for context keys
const (
	commandKey  ctxKey = "command"
	streamIDKey ctxKey = "streamID"
	envelopeKey ctxKey = "envelope"
)

// WithCommand stores the metadata of the command being dispatched on the context.
func WithCommand(ctx context.Context, md Metadata) context.Context {
	return context.WithValue(ctx, commandKey, md)
}

// WithStreamID stores the resolved stream id on the context.
func WithStreamID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, streamIDKey, id)
}

// CommandFromContext returns the command metadata and whether it was present.
func CommandFromContext(ctx context.Context) (Metadata, bool) {
	md, ok := ctx.Value(commandKey).(Metadata)
	return md, ok
}

// CorrelationIDFromContext returns the correlation id or "" if not present
func CorrelationIDFromContext(ctx context.Context) string {
	md, _ := CommandFromContext(ctx)
	return md.CorrelationID
}

// CommandNameFromContext returns the command name or "" if not present
func CommandNameFromContext(ctx context.Context) string {
	md, _ := CommandFromContext(ctx)
	return md.Name
}

// StreamIDFromContext returns the resolved stream id or uuid.Nil if not present
func StreamIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(streamIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithEnvelope stores the envelope being handled by an EventHandler.
func WithEnvelope(ctx context.Context, env *Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey, env)
}

// EnvelopeFromContext returns the envelope being handled, or nil.
func EnvelopeFromContext(ctx context.Context) *Envelope {
	env, _ := ctx.Value(envelopeKey).(*Envelope)
	return env
}
