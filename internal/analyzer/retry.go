package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxDelay   = 8 * time.Second
	defaultRetryMultiplier = 2
)

// RetryPolicy controls exponential backoff between provider attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Sleeper replaces the real wait, for tests
	Sleeper func(time.Duration)
}

// DefaultRetryPolicy is 3 attempts, 500ms doubling up to 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultRetryAttempts,
		BaseDelay:   defaultRetryBaseDelay,
		MaxDelay:    defaultRetryMaxDelay,
		Multiplier:  defaultRetryMultiplier,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// backOff builds the schedule: no jitter and no elapsed-time limit, the attempt
// cap is the only stop condition besides ctx.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.BaseDelay
	if expo.InitialInterval <= 0 {
		expo.InitialInterval = defaultRetryBaseDelay
	}
	expo.MaxInterval = p.MaxDelay
	if expo.MaxInterval <= 0 {
		expo.MaxInterval = defaultRetryMaxDelay
	}
	expo.Multiplier = p.Multiplier
	if expo.Multiplier < 1 {
		expo.Multiplier = defaultRetryMultiplier
	}
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	expo.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.attempts()-1)), ctx)
}

func (p RetryPolicy) timer() backoff.Timer {
	if p.Sleeper == nil {
		return nil
	}
	return &sleeperTimer{sleep: p.Sleeper, c: make(chan time.Time, 1)}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or attempts run out.
// Exhaustion is reported as an ExhaustedRetries error wrapping the last failure.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	aborted := false

	op := func() error {
		if err := ctx.Err(); err != nil {
			aborted = true
			return backoff.Permanent(err)
		}
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			aborted = true
			return backoff.Permanent(ctxErr)
		}
		if errors.Is(err, context.Canceled) || !apperrors.IsRetryable(err) {
			aborted = true
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotifyWithTimer(op, p.backOff(ctx), nil, p.timer())
	switch {
	case err == nil:
		return nil
	case aborted:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return apperrors.NewExhaustedRetriesError(attempt, err)
	}
}

// sleeperTimer fires immediately after the injected sleeper returns.
type sleeperTimer struct {
	sleep func(time.Duration)
	c     chan time.Time
}

func (t *sleeperTimer) Start(d time.Duration) {
	t.sleep(d)
	select {
	case t.c <- time.Now():
	default:
	}
}

func (t *sleeperTimer) Stop() {}

func (t *sleeperTimer) C() <-chan time.Time {
	return t.c
}
