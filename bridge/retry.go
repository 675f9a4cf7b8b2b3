package bridge

import (
	"context"
	"time"
)

// WithRetries runs fn up to retries+1 times, sleeping delay between
// attempts. The bound is explicit so policy can be tested in isolation;
// context cancellation stops further attempts.
func WithRetries(ctx context.Context, retries int, delay time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return err
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
