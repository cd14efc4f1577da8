// Package timeout provides per-request timeout middleware for completion clients.
package timeout

import (
	"context"
	"time"

	"forgeloop/pkg/llm"
)

// DefaultTimeout bounds a request when no explicit duration is configured.
const DefaultTimeout = 5 * time.Minute

// Middleware wraps a client so every request carries a deadline. Upstream
// providers may hang indefinitely; the controller relies on this bound at
// every external-call boundary. A non-positive duration falls back to
// DefaultTimeout.
func Middleware(duration time.Duration) llm.Middleware {
	if duration <= 0 {
		duration = DefaultTimeout
	}
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			next.ModelName,
		)
	}
}
