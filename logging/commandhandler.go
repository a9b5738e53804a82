package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/terraskye/progression"
)

// WithCommandLogging wraps a CommandHandler with logging functionality.
// It logs every dispatched command with its outcome, warns on concurrency
// conflicts and logs any other failure as an error.
func WithCommandLogging[P any](logger *logrus.Entry, next progression.CommandHandler[P]) progression.CommandHandler[P] {
	return func(ctx context.Context, cmd progression.Command[P]) (progression.AppendResult, error) {
		name := cmd.Metadata.Name
		if name == "" {
			name = fmt.Sprintf("%T", cmd.Payload)
		}
		l := logger.WithFields(logrus.Fields{
			"command":        name,
			"command_id":     cmd.Metadata.ID.String(),
			"correlation_id": cmd.Metadata.CorrelationID,
		})
		l.Debug("Dispatch")

		result, err := next(ctx, cmd)
		if result.StreamID != "" {
			l = l.WithField("stream_id", result.StreamID)
		}

		switch {
		case err == nil:
			l.WithFields(logrus.Fields{
				"outcome": result.Outcome.String(),
				"version": result.NextExpectedVersion,
			}).Info("Dispatched")
		case errors.Is(err, progression.ErrConflict):
			l.WithError(err).Warn("Dispatch conflicted")
		case errors.Is(err, progression.ErrMutation):
			l.WithError(err).Info("Dispatch rejected")
		default:
			l.WithError(err).Error("Dispatch failed")
		}

		return result, err
	}
}

// CommandLogging is WithCommandLogging as router middleware.
func CommandLogging(logger *logrus.Entry) progression.Middleware {
	return func(next progression.CommandHandler[json.RawMessage]) progression.CommandHandler[json.RawMessage] {
		return WithCommandLogging(logger, next)
	}
}
