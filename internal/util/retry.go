package util

import (
	"context"
	"fmt"
	"time"
)

// RetryIf calls fn up to maxAttempts times with exponential backoff starting
// at baseDelay while retryable accepts its error; any other error is
// returned at once. After the last attempt the error is wrapped with the
// attempt count. Cancelling ctx stops the backoff.
func RetryIf(ctx context.Context, maxAttempts int, baseDelay time.Duration, retryable func(error) bool, fn func() error) error {
	delay := baseDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
