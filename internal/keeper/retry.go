package keeper

import (
	"context"
	"errors"
	"time"

	"rangeKeeper/internal/automation"
)

// permanent reports engine failures retrying cannot clear: a consumed or
// invalidated digest, a signer who is not the owner, or a trigger that
// stopped holding. The last is retried on a later sweep, not here.
func permanent(err error) bool {
	return errors.Is(err, automation.ErrDigestUsed) ||
		errors.Is(err, automation.ErrNotOwner) ||
		errors.Is(err, automation.ErrTriggerNotMet)
}

// withRetry runs fn with exponential backoff, short-circuiting on
// permanent failures.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if permanent(err) || attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
