package session

import (
	"context"
	"time"
)

// RetryConfig bounds the retry loop applied to transient external-service
// failures. Delays double from Base up to Cap; at most MaxAttempts calls are
// ever issued.
type RetryConfig struct {
	// MaxAttempts is the total number of calls including the first.
	// Default: 3.
	MaxAttempts int

	// Base is the delay before the first retry. Default: 500ms.
	Base time.Duration

	// Cap is the ceiling the doubling delay never exceeds. Default: 8s.
	Cap time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Base <= 0 {
		c.Base = 500 * time.Millisecond
	}
	if c.Cap <= 0 {
		c.Cap = 8 * time.Second
	}
	return c
}

// retryDo runs op up to cfg.MaxAttempts times, backing off exponentially
// between attempts. Only errors transient reports as retryable are retried;
// permanent errors and context cancellation return immediately. onRetry, when
// non-nil, observes each scheduled retry.
func retryDo[T any](
	ctx context.Context,
	cfg RetryConfig,
	transient func(error) bool,
	onRetry func(attempt int, err error),
	op func(context.Context) (T, error),
) (T, error) {
	cfg = cfg.withDefaults()

	var (
		zero    T
		lastErr error
	)
	delay := cfg.Base
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !transient(err) || attempt == cfg.MaxAttempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > cfg.Cap {
			delay = cfg.Cap
		}
	}
	return zero, lastErr
}
