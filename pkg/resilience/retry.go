package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for transient failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Jitter     float64
	// Retryable decides whether err deserves another attempt. Nil uses DefaultRetryable.
	Retryable func(error) bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff, MaxBackoff: 2 * time.Second}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// retries are exhausted. Backoff doubles per attempt.
func (r RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	retryable := r.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if i == r.MaxRetries || !retryable(err) {
			return err
		}
		timer := time.NewTimer(r.delay(i, rnd))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (r RetryPolicy) delay(attempt int, rnd *rand.Rand) time.Duration {
	d := time.Duration(float64(r.Backoff) * math.Pow(2, float64(attempt)))
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	if r.Jitter > 0 {
		d += time.Duration(float64(d) * r.Jitter * rnd.Float64())
	}
	return d
}

// DefaultRetryable retries everything except cancellation and rate limits.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsRateLimit(err)
}
