package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kailas-cloud/swarmkb/internal/domain"
)

// Retry defaults.
const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 50 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultWriteTimeout   = 3 * time.Second
	backoffMultiplier     = 2
)

// RetryPolicy bounds how each pipeline step is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the default capped exponential policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

func (rp RetryPolicy) withDefaults() RetryPolicy {
	if rp.MaxAttempts <= 0 {
		rp.MaxAttempts = DefaultMaxAttempts
	}
	if rp.InitialBackoff <= 0 {
		rp.InitialBackoff = DefaultInitialBackoff
	}
	if rp.MaxBackoff < rp.InitialBackoff {
		rp.MaxBackoff = rp.InitialBackoff
	}
	return rp
}

func (rp RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rp.InitialBackoff
	b.MaxInterval = rp.MaxBackoff
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(rp.MaxAttempts-1)), ctx)
}

// do runs op until it succeeds, fails permanently, or attempts run out.
// Each attempt gets its own timeout.
func (rp RetryPolicy) do(ctx context.Context, timeout time.Duration, op func(context.Context) error) (int, error) {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := op(actx)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, rp.backOff(ctx))
	return attempts, err
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidSchema) ||
		errors.Is(err, domain.ErrImmutableField) ||
		errors.Is(err, domain.ErrNotFound)
}
