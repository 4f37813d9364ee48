package orchestrator

import (
	"context"
	"math"
	"time"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
)

// RetryPolicy is an exponential backoff for transient source failures.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy is 3 attempts waiting 2s then 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Initial: 2 * time.Second, Max: 30 * time.Second, Multiplier: 2}
}

// Backoff is the wait after failed attempt n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.Initial) * math.Pow(mult, float64(n-1)))
	if p.Max > 0 && (d > p.Max || d < 0) {
		d = p.Max
	}
	return d
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// withRetry runs fn until it succeeds, fails with a non-retryable error or
// the policy is exhausted. Each attempt gets its own timeout.
func (o *Orchestrator) withRetry(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context, attempt int) error) error {
	log := logger.FromContext(ctx, o.logger)
	limit := o.config.Retry.attempts()

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err := fn(attemptCtx, attempt)
		if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = errors.Mark(errors.Wrapf(err, "%s timed out after %s", op, timeout), errors.ErrTimeout)
		}
		cancel()

		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			return err
		}
		if attempt >= limit {
			return errors.Wrapf(err, "%s failed after %d attempts", op, attempt)
		}

		wait := o.config.Retry.Backoff(attempt)
		log.Warnw("Transient source failure, retrying",
			"op", op,
			logger.FieldAttempt, attempt,
			logger.FieldBackoff, wait,
			logger.FieldError, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "%s interrupted while waiting to retry", op)
		case <-timer.C:
		}
	}
}
