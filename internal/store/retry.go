package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when a backend is opened without one.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 8,
	BaseDelay:   5 * time.Millisecond,
	MaxDelay:    200 * time.Millisecond,
}

// normalized fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// delay returns the backoff before the given retry (1-based).
func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// RetryObserver receives transaction outcomes. metrics.Metrics implements it.
type RetryObserver interface {
	ObserveTxAttempt(backend string)
	ObserveTxConflict(backend string)
	ObserveTxExhausted(backend string)
}

type noopObserver struct{}

func (noopObserver) ObserveTxAttempt(string)   {}
func (noopObserver) ObserveTxConflict(string)  {}
func (noopObserver) ObserveTxExhausted(string) {}

// NoopObserver discards transaction outcomes.
var NoopObserver RetryObserver = noopObserver{}

// Retry runs attempt until it returns something other than ErrConflict or
// the policy is exhausted. Exhaustion is reported as ErrTransient.
func Retry(ctx context.Context, backend string, policy RetryPolicy, obs RetryObserver, attempt func(ctx context.Context) error) error {
	policy = policy.normalized()
	if obs == nil {
		obs = NoopObserver
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		obs.ObserveTxAttempt(backend)
		err := attempt(ctx)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		obs.ObserveTxConflict(backend)

		if n >= policy.MaxAttempts {
			obs.ObserveTxExhausted(backend)
			return fmt.Errorf("transaction aborted after %d attempts: %w", n, ErrTransient)
		}

		timer := time.NewTimer(policy.delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
