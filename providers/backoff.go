package providers

import (
	"context"
	"math/rand"
	"time"
)

// BackoffPolicy is the retry discipline applied to transient adapter
// failures inside a single aggregation cycle.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultBackoff matches the documented provider guidance: start at 200ms,
// double with jitter, cap at 2s, three retries.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		MaxRetries: 3,
	}
}

// Retry runs fn, retrying transient failures with exponential backoff plus
// jitter. Auth and parse failures return immediately. The last error is
// returned after the retry budget is exhausted.
func (p BackoffPolicy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := p.Initial
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if KindOf(err) != FailureTransient {
			return err
		}
		if attempt >= p.MaxRetries {
			return err
		}

		// Full jitter within [delay/2, delay].
		sleep := delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}

		delay *= 2
		if p.Max > 0 && delay > p.Max {
			delay = p.Max
		}
	}
}
