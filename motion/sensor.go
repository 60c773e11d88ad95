// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package motion

import (
	"context"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Sensor is a source of linear acceleration samples (gravity removed) in
	// units of standard gravity.
	Sensor interface {
		// Available reports whether the hardware is present and permitted.
		Available(ctx context.Context) bool

		// Subscribe starts delivering samples at roughly the given interval
		// until stop is called or the sensor ends the stream by closing the
		// channel.
		Subscribe(interval time.Duration) (samples <-chan Sample, stop func())
	}

	// ReplaySensor plays back recorded sample batches, one batch per
	// subscription. With no batch left, a subscription stays open and silent
	// until stopped.
	ReplaySensor struct {
		// Clock paces playback so each sample is delivered at its timestamp.
		// If nil, samples are delivered as fast as they are consumed.
		Clock wallclock.WallClock

		mu          sync.Mutex
		batches     [][]Sample
		unavailable bool
	}
)

// NewReplaySensor creates a replay sensor with the given batches queued.
func NewReplaySensor(batches ...[]Sample) *ReplaySensor {
	return &ReplaySensor{batches: batches}
}

// Enqueue adds a batch to be played back by a later subscription.
func (r *ReplaySensor) Enqueue(batch []Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

// SetAvailable toggles the reported hardware availability.
func (r *ReplaySensor) SetAvailable(available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = !available
}

// Available implements Sensor.
func (r *ReplaySensor) Available(context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.unavailable
}

// Subscribe implements Sensor.
func (r *ReplaySensor) Subscribe(time.Duration) (<-chan Sample, func()) {
	r.mu.Lock()
	var batch []Sample
	idle := len(r.batches) == 0
	if !idle {
		batch, r.batches = r.batches[0], r.batches[1:]
	}
	r.mu.Unlock()

	out := make(chan Sample)
	done := make(chan struct{})
	stop := sync.OnceFunc(func() { close(done) })

	if idle {
		return out, stop
	}

	go func() {
		defer close(out)
		for _, s := range batch {
			if r.Clock != nil {
				if wait := s.Timestamp.Sub(r.Clock.Now()); wait > 0 {
					select {
					case <-r.Clock.After(wait):
					case <-done:
						return
					}
				}
			}
			select {
			case out <- s:
			case <-done:
				return
			}
		}
	}()

	return out, stop
}

// BumpTrace synthesizes a short trace at the nominal sample rate: three quiet
// warm-up samples, then a sharp rise to peak (in g) followed by a decay.
func BumpTrace(start time.Time, peak Vector) []Sample {
	step := time.Second / SampleRate
	profile := []float64{0, 0, 0, 0.05, 1, 0.6, 0.2, 0}

	trace := make([]Sample, len(profile))
	for i, f := range profile {
		trace[i] = Sample{
			Acceleration: peak.Scale(f),
			Timestamp:    start.Add(time.Duration(i) * step),
		}
	}
	return trace
}
