package orders

import (
	"context"
	"time"

	random "github.com/mazen160/go-random"
)

// DelayFunc pauses between browser interactions. Injected so tests can
// skip the waiting entirely.
type DelayFunc func(ctx context.Context)

// NoDelay is for tests.
func NoDelay(context.Context) {}

// Jitter waits a random duration in [min, max], humans need time to
// scan a page before acting on it.
func Jitter(min, max time.Duration) DelayFunc {
	return func(ctx context.Context) {
		span := max - min
		wait := min
		if span > 0 {
			n, err := random.IntRange(0, int(span/time.Millisecond))
			if err == nil {
				wait += time.Duration(n) * time.Millisecond
			}
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
}
