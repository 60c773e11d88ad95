// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package clocktest provides a manually advanced wallclock for tests that
// need to reason about timers and deadlines without sleeping.
package clocktest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Manual is a wallclock.WallClock whose time only moves on Advance.
	Manual struct {
		mu      sync.Mutex
		now     time.Time
		timers  []*manualTimer
		changed chan struct{}
	}

	manualTimer struct {
		clock    *Manual
		c        chan time.Time
		deadline time.Time
	}
)

var _ wallclock.WallClock = (*Manual)(nil)

// NewManual creates a manual clock starting at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, changed: make(chan struct{})}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// NewTimer creates a timer that fires once the clock is advanced by d.
func (m *Manual) NewTimer(d time.Duration) wallclock.Timer {
	t := &manualTimer{clock: m, c: make(chan time.Time, 1)}
	t.Reset(d)
	return t
}

// After is shorthand for NewTimer(d).C().
func (m *Manual) After(d time.Duration) <-chan time.Time {
	return m.NewTimer(d).C()
}

// WithTimeoutCause returns a context cancelled with cause once the clock is
// advanced past the timeout.
func (m *Manual) WithTimeoutCause(
	parent context.Context,
	timeout time.Duration,
	cause error,
) (context.Context, context.CancelFunc) {
	ctx, cancelCause := context.WithCancelCause(parent)

	go func(t wallclock.Timer) {
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C():
			cancelCause(cause)
		}
	}(m.NewTimer(timeout))

	return ctx, func() { cancelCause(context.Canceled) }
}

// Advance moves the clock forward, firing every timer whose deadline has been
// reached in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = m.now.Add(d)

	var due, pending []*manualTimer
	for _, t := range m.timers {
		if t.deadline.After(m.now) {
			pending = append(pending, t)
		} else {
			due = append(due, t)
		}
	}
	slices.SortFunc(due, func(a, b *manualTimer) int {
		return a.deadline.Compare(b.deadline)
	})

	m.timers = pending
	for _, t := range due {
		t.fire(m.now)
	}
	m.notify()
}

// ActiveTimers returns the number of armed timers.
func (m *Manual) ActiveTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// BlockUntil waits until at least n timers are armed or the context ends.
func (m *Manual) BlockUntil(ctx context.Context, n int) error {
	for {
		m.mu.Lock()
		if len(m.timers) >= n {
			m.mu.Unlock()
			return nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Must hold m.mu.
func (m *Manual) notify() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Must hold m.mu.
func (m *Manual) remove(t *manualTimer) bool {
	for i, at := range m.timers {
		if at == t {
			m.timers = slices.Delete(m.timers, i, i+1)
			return true
		}
	}
	return false
}

func (t *manualTimer) fire(now time.Time) {
	select {
	case t.c <- now:
	default:
	}
}

func (t *manualTimer) C() <-chan time.Time {
	return t.c
}

func (t *manualTimer) Reset(d time.Duration) bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.remove(t)

	// Drop any stale expiry, matching time.Timer since Go 1.23.
	select {
	case <-t.c:
	default:
	}

	t.deadline = m.now.Add(d)
	if d <= 0 {
		t.fire(m.now)
	} else {
		m.timers = append(m.timers, t)
	}
	m.notify()
	return active
}

func (t *manualTimer) Stop() bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.remove(t)
	if active {
		m.notify()
	}
	return active
}
