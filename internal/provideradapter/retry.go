package provideradapter

import (
	"context"
	"math"
	"time"
)

// RetryPolicy implements the HTTP retry rules in spec.md §4.2/§7:
// 401/400 get a single refresh-and-retry; 429/5xx get exponential
// backoff up to maxRetries.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxRetries int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 1000 * time.Millisecond, MaxRetries: 3}
}

func (r RetryPolicy) backoff(attempt int) time.Duration {
	return time.Duration(float64(r.BaseDelay) * math.Pow(2, float64(attempt)))
}

// Attempt drives one call through the policy. call must return the raw
// status code (0 if the failure never reached an HTTP response), and
// refresh is invoked exactly once before the single 401/400 retry.
// delivered, once true, permanently disables further retries even if
// call fails again — a 5xx after streaming has begun must not repeat
// already-flushed output to the caller (SPEC_FULL.md §9 decision 3).
func (r RetryPolicy) Attempt(ctx context.Context, delivered *bool, refresh func(context.Context) error, call func(context.Context) (statusCode int, err error)) error {
	var lastErr error
	refreshedOnce := false

	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		statusCode, err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if delivered != nil && *delivered {
			return lastErr
		}

		switch {
		case (statusCode == 401 || statusCode == 400) && !refreshedOnce:
			refreshedOnce = true
			if refresh != nil {
				if rerr := refresh(ctx); rerr != nil {
					return rerr
				}
			}
			continue
		case statusCode == 429 || (statusCode >= 500 && statusCode < 600):
			if attempt == r.MaxRetries {
				return lastErr
			}
			select {
			case <-time.After(r.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		default:
			return lastErr
		}
	}

	return lastErr
}
