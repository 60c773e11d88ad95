// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"time"
)

type (
	// WallClock abstracts the subset of packages context and time used by the
	// match channels, so that timers can be driven deterministically in tests.
	WallClock interface {
		WithTimeoutCause(
			parent context.Context,
			timeout time.Duration,
			cause error,
		) (context.Context, context.CancelFunc)
		After(d time.Duration) <-chan time.Time
		NewTimer(d time.Duration) Timer
		Now() time.Time
	}

	// Timer abstracts the functionality of time.Timer.
	Timer interface {
		C() <-chan time.Time
		Reset(d time.Duration) bool
		Stop() bool
	}

	wallClock struct{}

	timer struct {
		*time.Timer
	}
)

// Real is the WallClock backed by packages context and time. Components hold
// their own clock reference (defaulting to Real) rather than sharing a mutable
// global, so that concurrent sessions and tests never interfere.
var Real WallClock = wallClock{}

// Or returns the given clock, or Real if it is nil.
func Or(c WallClock) WallClock {
	if c == nil {
		return Real
	}
	return c
}

// WithTimeoutCause indirects context.WithTimeoutCause.
func (wallClock) WithTimeoutCause(
	parent context.Context,
	timeout time.Duration,
	cause error,
) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(parent, timeout, cause)
}

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTimer indirects time.NewTimer.
func (wallClock) NewTimer(d time.Duration) Timer {
	return timer{Timer: time.NewTimer(d)}
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// C indirects time.Timer.C.
func (t timer) C() <-chan time.Time {
	return t.Timer.C
}
