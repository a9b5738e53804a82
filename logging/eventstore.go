package logging

import (
	"context"
	"log/slog"

	cqrs "github.com/terraskye/progression"
)

type storeLogger struct {
	logger *slog.Logger
	next   cqrs.EventStore
}

// WithStoreLogging logs every store operation at debug level, tagged with the
// command and correlation id found on the context.
func WithStoreLogging(logger *slog.Logger, next cqrs.EventStore) cqrs.EventStore {
	return &storeLogger{logger: logger, next: next}
}

func (s *storeLogger) with(ctx context.Context, op string) *slog.Logger {
	return s.logger.With(
		"operation", op,
		"command", cqrs.CommandNameFromContext(ctx),
		"correlation", cqrs.CorrelationIDFromContext(ctx),
	)
}

func (s *storeLogger) Save(ctx context.Context, events []cqrs.Envelope, revision cqrs.StreamState) (cqrs.AppendResult, error) {
	l := s.with(ctx, "save").With("events", len(events), "revision", revision)
	if len(events) > 0 {
		l = l.With("stream-id", events[0].StreamID)
	}

	result, err := s.next.Save(ctx, events, revision)
	if err != nil {
		l.DebugContext(ctx, "save failed", "error", err)
		return result, err
	}
	l.DebugContext(ctx, "events saved", "version", result.NextExpectedVersion)
	return result, nil
}

func (s *storeLogger) LoadStream(ctx context.Context, id string) (*cqrs.Iterator[*cqrs.Envelope], error) {
	iter, err := s.next.LoadStream(ctx, id)
	s.logLoad(ctx, "load-stream", id, 0, err)
	return iter, err
}

func (s *storeLogger) LoadStreamFrom(ctx context.Context, id string, after uint64) (*cqrs.Iterator[*cqrs.Envelope], error) {
	iter, err := s.next.LoadStreamFrom(ctx, id, after)
	s.logLoad(ctx, "load-stream-from", id, after, err)
	return iter, err
}

func (s *storeLogger) LoadFromAll(ctx context.Context, after uint64) (*cqrs.Iterator[*cqrs.Envelope], error) {
	iter, err := s.next.LoadFromAll(ctx, after)
	s.logLoad(ctx, "load-all", "", after, err)
	return iter, err
}

func (s *storeLogger) Close() error {
	return s.next.Close()
}

func (s *storeLogger) logLoad(ctx context.Context, op, id string, after uint64, err error) {
	l := s.with(ctx, op).With("stream-id", id, "after", after)
	if err != nil {
		l.DebugContext(ctx, "load failed", "error", err)
		return
	}
	l.DebugContext(ctx, "stream opened")
}
