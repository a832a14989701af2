// Package backoff wraps cenkalti/backoff with the retry policy used for
// sink calls: exponential sleeps with a hard ceiling, a fixed number of
// tries and no jitter.
package backoff

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes one retry schedule. The sleep before retry n (1-based)
// is min(Start*Factor^n, Ceiling); MaxTries counts the total attempts,
// including the first one.
type Policy struct {
	Start    time.Duration
	Factor   float64
	Ceiling  time.Duration
	MaxTries uint64
}

// Default returns the schedule applied to Elasticsearch calls:
// 0.1s start, doubling, capped at 10s, 8 attempts.
func Default() Policy {
	return Policy{
		Start:    100 * time.Millisecond,
		Factor:   2,
		Ceiling:  10 * time.Second,
		MaxTries: 8,
	}
}

// Permanent marks err as non-retryable; Retry stops immediately and
// returns the wrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, the policy is exhausted, or ctx is
// cancelled. The last error is returned on exhaustion.
func Retry(ctx context.Context, p Policy, op func() error) error {
	return RetryNotify(ctx, p, op, nil)
}

// RetryNotify is Retry with a callback invoked before each sleep, so
// callers can log the failure and the upcoming wait.
func RetryNotify(ctx context.Context, p Policy, op func() error, notify func(err error, wait time.Duration)) error {
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}

	// backoff instances are stateful; build a fresh one per call.
	var b backoff.BackOff = backoff.WithMaxRetries(newExponential(p), tries-1)
	b = backoff.WithContext(b, ctx)

	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}
	return backoff.RetryNotify(op, b, n)
}

func newExponential(p Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	// The first sleep already includes one factor step, matching the
	// 1-based schedule above.
	b.InitialInterval = time.Duration(float64(p.Start) * p.Factor)
	b.Multiplier = p.Factor
	b.MaxInterval = p.Ceiling
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
