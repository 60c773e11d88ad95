// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package motion

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

// Detector turns a stream of accelerometer samples into bump detections. It
// owns the priming latches for one session at a time; create one detector per
// exchange flow and inject it where needed.
type Detector struct {
	sensor   Sensor
	interval time.Duration
	clock    wallclock.WallClock
	log      logger

	mu           sync.Mutex
	latches      Latches
	sessionStart time.Time
	session      context.Context
	endSession   context.CancelFunc
	closed       bool
}

// New creates a detector reading from the given sensor.
func New(sensor Sensor, opt ...Option) *Detector {
	var opts Options
	opts.Apply(opt)

	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second / SampleRate
	}

	return &Detector{
		sensor:   sensor,
		interval: opts.SampleInterval,
		clock:    wallclock.Or(opts.Clock),
		log:      logger{log.Wrap(opts.Logger).WithClock(wallclock.Or(opts.Clock))},
	}
}

// StartSession clears all priming latches and marks the start of a new
// session. Calling it repeatedly has the same effect as calling it once.
func (d *Detector) StartSession() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.latches = Latches{}
	d.sessionStart = d.clock.Now()
	if d.session == nil {
		d.session, d.endSession = context.WithCancel(context.Background())
	}
}

// EndSession cancels any in-flight detection and clears the latches. It is
// safe to call multiple times.
func (d *Detector) EndSession() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.endSession != nil {
		d.endSession()
	}
	d.session, d.endSession = nil, nil
	d.latches = Latches{}
	d.sessionStart = time.Time{}
}

// Close ends the session and makes every later Detect call return a negative
// detection immediately.
func (d *Detector) Close() {
	d.EndSession()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

// Latches returns a snapshot of the current priming latches.
func (d *Detector) Latches() Latches {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latches
}

// SessionStart returns the time the current session started, or the zero
// time if no session is active.
func (d *Detector) SessionStart() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionStart
}

// Detect samples the sensor until a bump is detected, the context is done,
// the session ends, or the sample stream closes. It never returns an error:
// an absent sensor is reported as a negative detection with Unavailable set.
func (d *Detector) Detect(ctx context.Context) Detection {
	session, ok := d.activeSession()
	if !ok {
		return Detection{}
	}

	if !d.sensor.Available(ctx) {
		d.log.unavailable(ctx)
		return Detection{Unavailable: true}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(session, cancel)()

	samples, stop := d.sensor.Subscribe(d.interval)
	defer stop()

	var (
		seen     int
		prevMag  float64
		prevTime time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return Detection{}

		case s, ok := <-samples:
			if !ok {
				return Detection{}
			}

			acc := s.Acceleration.Scale(StandardGravity)
			mag := acc.Norm()

			seen++
			if seen <= WarmupSamples {
				prevMag, prevTime = mag, s.Timestamp
				continue
			}

			var jerk float64
			if dt := s.Timestamp.Sub(prevTime).Seconds(); dt > 0 {
				jerk = math.Abs(mag-prevMag) / dt
			}
			prevMag, prevTime = mag, s.Timestamp

			if det, ok := d.observe(ctx, acc, mag, jerk, s.Timestamp); ok {
				d.log.detected(ctx, &det)
				return det
			}
		}
	}
}

func (d *Detector) activeSession() (context.Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, false
	}
	if d.session == nil {
		d.sessionStart = d.clock.Now()
		d.session, d.endSession = context.WithCancel(context.Background())
	}
	return d.session, true
}

// Evaluate the sample against the latches primed so far, then prime. The
// evaluation happens first so that sequential rules only ever pair a latch
// from an earlier sample with the current one.
func (d *Detector) observe(
	ctx context.Context,
	acc Vector,
	mag, jerk float64,
	ts time.Time,
) (Detection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rule, fired := d.latches.Evaluate(mag, jerk)

	before := d.latches
	d.latches.Prime(mag, jerk)
	d.log.primed(ctx, before, d.latches)

	if !fired {
		return Detection{}, false
	}
	return Detection{
		HasMotion:    true,
		Acceleration: acc,
		Magnitude:    mag,
		Jerk:         jerk,
		Timestamp:    ts,
		Rule:         rule,
	}, true
}
