// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

// ExponentialBackoff implements a retry policy with exponential backoff and
// optional jitter.
type ExponentialBackoff struct {
	// MaxAttempts sets the maximum number of attempts. The default value of 0
	// indicates unlimited attempts; setting this to 1 will disable retries.
	MaxAttempts uint64

	// MinInterval is the minimum interval between retries (before jitter).
	// Will be set to a default of 1/8s if unspecified.
	MinInterval time.Duration

	// MaxInterval is the maximum interval between retries (before jitter).
	// Will be set to a default of 2s if unspecified.
	MaxInterval time.Duration

	// Timeout is the total timeout for all retries.
	Timeout time.Duration

	// NoJitter removes the default jitter.
	NoJitter bool

	// Clock drives the waits between attempts. Defaults to the real clock.
	Clock wallclock.WallClock

	// Logger provides a logger which will be used to log retry attempts and
	// results.
	Logger *slog.Logger
}

// Start initiates the retry executions.
func (e *ExponentialBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	clock := wallclock.Or(e.Clock)

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = clock.WithTimeoutCause(
			ctx,
			e.Timeout,
			context.DeadlineExceeded,
		)
		defer cancel()
	}

	l := logger{log.Wrap(e.Logger).WithClock(clock)}

	for attempt := uint64(1); ; attempt++ {
		l.attempt(ctx, name, attempt)
		retry, err := task(ctx)
		if err == nil {
			l.complete(ctx, name, attempt, nil)
			return nil
		}

		interval := e.shouldRetry(ctx, attempt, retry, err)
		if interval == 0 {
			l.complete(ctx, name, attempt, err)
			return err
		}
		l.backoff(ctx, name, attempt, interval, err)

		select {
		case <-clock.After(interval):
		case <-ctx.Done():
			l.complete(ctx, name, attempt, context.Cause(ctx))
			return err
		}
	}
}

// Decide if we need to continue retrying based on the attempt count and the
// task's verdict, returning the interval to wait or zero to stop. A wait
// requested by the error itself is never shortened.
func (e *ExponentialBackoff) shouldRetry(
	ctx context.Context,
	attempt uint64,
	retry bool,
	err error,
) time.Duration {
	switch {
	case !retry,
		attempt == e.MaxAttempts,
		ctx.Err() != nil:
		return 0
	}

	minInterval := e.MinInterval
	if minInterval == 0 {
		minInterval = time.Second / 8
	}

	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = 2 * time.Second
	}

	// Calculate exponent and clamp to max exponent.
	factor := math.Pow(2, min(
		float64(attempt-1),
		math.Log2(float64(maxInterval)/float64(minInterval)),
	))
	if !e.NoJitter {
		factor = e.jitter(factor)
	}

	interval := time.Duration(factor * float64(minInterval))

	var d Delayer
	if errors.As(err, &d) {
		interval = max(interval, d.RetryAfter())
	}
	return interval
}

// Add random jitter to the base time to avoid synchronicity in retry attempts.
// The jitter is between 95% and 105% of the base time.
func (e *ExponentialBackoff) jitter(base float64) float64 {
	// #nosec G404
	seed := wallclock.Or(e.Clock).Now().UnixNano()
	j := rand.New(rand.NewSource(seed)).Float64()
	return base * (.95 + .1*j)
}
