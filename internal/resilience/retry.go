package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy bounds the retries of one external call.
type Policy struct {
	// Attempts is the total number of tries including the first. Default: 3.
	Attempts int

	// Base is the delay before the first retry. Default: 250ms.
	Base time.Duration

	// Max caps a single delay. Default: 5s.
	Max time.Duration

	// Multiplier scales Base after each attempt. Default: 2.
	Multiplier float64

	// Jitter is the upper bound of a uniform random delay added to each
	// backoff. Zero disables jitter.
	Jitter time.Duration

	// Retryable overrides IsTransient when set.
	Retryable func(err error) bool

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// FetchPolicy is the policy used for page fetches: three attempts with
// 250ms growing backoff and up to 200ms of jitter.
func FetchPolicy(attempts int) Policy {
	return Policy{
		Attempts:   attempts,
		Base:       250 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
		Jitter:     200 * time.Millisecond,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx ends. fn receives the 0-based attempt number so
// callers can vary request headers between tries.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.withDefaults()
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		val, err := fn(ctx, attempt)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == p.Attempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// Backoff returns the sleep after the given 0-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	delay := time.Duration(d)
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(p.Jitter)))
	}
	return delay
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Base <= 0 {
		p.Base = 250 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 5 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, target string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Debug("retrying request",
			zap.String("service", service),
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
