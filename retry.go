package progression

import (
	"context"
	"encoding/json"

	"github.com/cenkalti/backoff/v4"
)

// WithConflictRetry re-dispatches the whole command through next while it
// fails with a retryable error, waiting between attempts as the BackOff
// returned by policy dictates. Any other error is returned immediately.
//
// Each attempt runs the full resolve, rehydrate, mutate and append cycle, so
// a retry never reuses state read before the conflict. policy is called once
// per command because BackOff implementations are stateful.
//
// Example:
//
//	handler = WithConflictRetry(handler, func() backoff.BackOff {
//		return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
//	})
func WithConflictRetry[P any](next CommandHandler[P], policy func() backoff.BackOff) CommandHandler[P] {
	return func(ctx context.Context, cmd Command[P]) (AppendResult, error) {
		return backoff.RetryWithData(func() (AppendResult, error) {
			result, err := next(ctx, cmd)
			if err != nil && !IsRetryable(err) {
				return result, backoff.Permanent(err)
			}
			return result, err
		}, backoff.WithContext(policy(), ctx))
	}
}

// ConflictRetry is WithConflictRetry as router middleware.
func ConflictRetry(policy func() backoff.BackOff) Middleware {
	return func(next CommandHandler[json.RawMessage]) CommandHandler[json.RawMessage] {
		return WithConflictRetry(next, policy)
	}
}
