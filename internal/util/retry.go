package util

import (
	"context"
	"errors"
	"time"
)

// retryable is implemented by errors that know whether another attempt can
// succeed (see broker.Error).
type retryable interface {
	Retryable() bool
}

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay. It returns nil on the first successful call. An error that
// reports Retryable() == false stops the attempts immediately; retrying a
// terminal failure (bad credentials, caller bug) would only repeat it. The
// function respects context cancellation between retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var r retryable
		if errors.As(err, &r) && !r.Retryable() {
			return err
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}
