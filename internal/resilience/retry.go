package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/decisiongate/decisiongate/internal/domain"
)

// retryDelay is the pause before the single retry attempt.
const retryDelay = 100 * time.Millisecond

// RetryTransient runs fn and, if it fails with domain.ErrTransient, retries
// exactly once after a short delay. Any other error, including a transient
// error on the second attempt, is surfaced unchanged. Conflict and
// validation errors are never retried.
func RetryTransient(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !errors.Is(err, domain.ErrTransient) {
		return err
	}

	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return err
	}

	return fn(ctx)
}
