package otel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	es "github.com/terraskye/progression"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithCommandTelemetry wraps a CommandHandler with OpenTelemetry tracing and metrics.
//
// Each command gets a span named "command.handle <name>" carrying the command
// name, command id, correlation id and, once handled, the stream id, version
// and outcome. In-flight, duration, handled and failed metrics are recorded
// per command name.
//
// A rejected mutation is a business outcome: the span status stays Ok and a
// "mutation_rejected" event is added. A conflict adds a "concurrency_conflict"
// event and increments ConcurrencyConflicts. Every other error marks the span
// as failed.
//
// Example Usage:
//
//	handler := WithCommandTelemetry(es.NewDispatcher(store, hearingType, resolve, list))
func WithCommandTelemetry[P any](next es.CommandHandler[P], opts ...Option) es.CommandHandler[P] {
	cfg := newConfig(opts)

	return func(ctx context.Context, cmd es.Command[P]) (es.AppendResult, error) {
		name := cmd.Metadata.Name
		if name == "" {
			name = fmt.Sprintf("%T", cmd.Payload)
		}
		nameAttr := metric.WithAttributes(AttrCommandName.String(name))

		attr := append(cfg.attributes(ctx),
			AttrCommandName.String(name),
			AttrCommandID.String(cmd.Metadata.ID.String()),
			AttrCorrelationID.String(cmd.Metadata.CorrelationID),
		)

		ctx, span := tracer.Start(ctx, cfg.spanName(ctx, "command.handle "+name),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attr...),
		)
		defer span.End()

		CommandsInFlight.Add(ctx, 1, nameAttr)
		defer CommandsInFlight.Add(ctx, -1, nameAttr)
		startTime := time.Now()
		result, err := next(ctx, cmd)

		CommandsDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), nameAttr)

		span.SetAttributes(
			AttrStreamID.String(result.StreamID),
			AttrStreamVersion.Int64(int64(result.NextExpectedVersion)),
		)

		if err != nil {
			var dispatchErr *es.DispatchError
			if errors.As(err, &dispatchErr) && dispatchErr.Kind != nil {
				span.SetAttributes(AttrErrorKind.String(dispatchErr.Kind.Error()))
			}
			CommandsFailed.Add(ctx, 1, nameAttr)

			switch {
			case errors.Is(err, es.ErrMutation):
				span.SetStatus(codes.Ok, fmt.Sprintf("mutation rejected: %v", err))
				span.AddEvent("mutation_rejected", trace.WithAttributes(
					AttrCommandName.String(name),
					AttrStreamID.String(result.StreamID),
				))
				return result, err
			case errors.Is(err, es.ErrConflict):
				ConcurrencyConflicts.Add(ctx, 1, nameAttr)
				span.AddEvent("concurrency_conflict", trace.WithAttributes(
					AttrStreamID.String(result.StreamID),
				))
			}

			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			return result, err
		}

		span.SetAttributes(AttrOutcome.String(result.Outcome.String()))
		span.SetStatus(codes.Ok, "")
		CommandsHandled.Add(ctx, 1, metric.WithAttributes(
			AttrCommandName.String(name),
			AttrOutcome.String(result.Outcome.String()),
		))

		return result, nil
	}
}

// CommandTelemetry is WithCommandTelemetry as router middleware.
func CommandTelemetry(opts ...Option) es.Middleware {
	return func(next es.CommandHandler[json.RawMessage]) es.CommandHandler[json.RawMessage] {
		return WithCommandTelemetry(next, opts...)
	}
}
