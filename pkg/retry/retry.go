// Package retry provides the fixed-delay retry helper used for startup broker
// reachability checks. Per-destination dispatch retry (which must classify the
// error and honour stopOnException) has its own loop in application/dispatcher.go;
// this helper is for the simpler "retry N times, same delay" cases.
package retry

import (
	"context"
	"time"
)

// Do calls fn up to maxAttempts times, waiting delay between attempts, until fn
// returns nil or the attempts are exhausted. The wait is interruptible via ctx.
func Do(ctx context.Context, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
