// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package motion_test

import (
	"context"
	"testing"
	"time"

	"github.com/alexweingart/nektus-sub006/motion"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// trace builds samples along the X axis from (magnitude m/s², delay ms)
// pairs, preceded by three quiet warm-up samples.
func trace(start time.Time, steps ...[2]float64) []motion.Sample {
	var out []motion.Sample
	ts := start
	for i := range motion.WarmupSamples {
		if i > 0 {
			ts = ts.Add(16 * time.Millisecond)
		}
		out = append(out, motion.Sample{Timestamp: ts})
	}
	for _, s := range steps {
		ts = ts.Add(time.Duration(s[1] * float64(time.Millisecond)))
		out = append(out, motion.Sample{
			Acceleration: motion.Vector{X: s[0] / motion.StandardGravity},
			Timestamp:    ts,
		})
	}
	return out
}

func TestStrongBumpOnFirstEvaluatedSample(t *testing.T) {
	// Magnitude 12 reached 80ms after rest gives a jerk of 150.
	sensor := motion.NewReplaySensor(trace(epoch, [2]float64{12, 80}))
	d := motion.New(sensor)
	d.StartSession()

	det := d.Detect(context.Background())
	require.True(t, det.HasMotion)
	require.Equal(t, motion.RuleStrongBump, det.Rule)
	require.InDelta(t, 12, det.Magnitude, 1e-9)
	require.InDelta(t, 150, det.Jerk, 1e-6)
	require.InDelta(t, 12, det.Acceleration.X, 1e-9)
}

func TestSequentialMagnitudeLatch(t *testing.T) {
	var l motion.Latches

	// Magnitude 6 alone primes the magnitude latch without detecting.
	_, fired := l.Evaluate(6, 50)
	require.False(t, fired)
	l.Prime(6, 50)
	require.True(t, l.Magnitude)
	require.False(t, l.StrongMagnitude)

	// Magnitude 6 with jerk 110 satisfies no dual rule on its own...
	_, fired = motion.Latches{}.Evaluate(6, 110)
	require.False(t, fired)

	// ...but fires through the latched magnitude path.
	rule, fired := l.Evaluate(6, 110)
	require.True(t, fired)
	require.Equal(t, motion.RuleSequentialMagnitude, rule)
}

func TestLatchesDoNotFireOnTheSameSample(t *testing.T) {
	sensor := motion.NewReplaySensor(trace(epoch,
		[2]float64{6, 50}, // jerk 120: primes magnitude and jerk at once
	))
	d := motion.New(sensor)
	d.StartSession()

	det := d.Detect(context.Background())
	require.False(t, det.HasMotion)
	require.Equal(t, motion.Latches{Magnitude: true, Jerk: true}, d.Latches())
}

func TestLatchesPersistAcrossCalls(t *testing.T) {
	sensor := motion.NewReplaySensor(
		trace(epoch, [2]float64{6, 100}),
		trace(epoch.Add(time.Second), [2]float64{1.5, 10}),
	)
	d := motion.New(sensor)
	d.StartSession()

	first := d.Detect(context.Background())
	require.False(t, first.HasMotion)
	require.True(t, d.Latches().Magnitude)

	second := d.Detect(context.Background())
	require.True(t, second.HasMotion)
	require.Equal(t, motion.RuleSequentialMagnitude, second.Rule)
}

func TestStartSessionClearsCarryOver(t *testing.T) {
	sensor := motion.NewReplaySensor(
		trace(epoch, [2]float64{6, 100}),
		trace(epoch.Add(time.Second), [2]float64{1.5, 10}),
	)
	d := motion.New(sensor)
	d.StartSession()

	require.False(t, d.Detect(context.Background()).HasMotion)

	d.StartSession()
	d.StartSession()
	require.Equal(t, motion.Latches{}, d.Latches())

	require.False(t, d.Detect(context.Background()).HasMotion)
}

func TestUnavailableSensorIsNegative(t *testing.T) {
	sensor := motion.NewReplaySensor(trace(epoch, [2]float64{12, 80}))
	sensor.SetAvailable(false)

	d := motion.New(sensor)
	det := d.Detect(context.Background())
	require.False(t, det.HasMotion)
	require.True(t, det.Unavailable)
}

func TestEndSessionCancelsInFlightDetection(t *testing.T) {
	d := motion.New(motion.NewReplaySensor())
	d.StartSession()

	done := make(chan motion.Detection)
	go func() { done <- d.Detect(context.Background()) }()

	// Detect may not have picked up the session yet, so keep ending it.
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case det := <-done:
			require.False(t, det.HasMotion)
			require.False(t, det.Unavailable)
			return
		case <-tick.C:
			d.EndSession()
		case <-timeout:
			require.Fail(t, "detection was not cancelled")
			return
		}
	}
}

func TestContextCancellationIsNegative(t *testing.T) {
	d := motion.New(motion.NewReplaySensor())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.False(t, d.Detect(ctx).HasMotion)
}

func TestClosedDetectorRefusesDetection(t *testing.T) {
	sensor := motion.NewReplaySensor(trace(epoch, [2]float64{12, 80}))
	d := motion.New(sensor)
	d.Close()

	require.False(t, d.Detect(context.Background()).HasMotion)
}

func TestBumpTraceDetects(t *testing.T) {
	sensor := motion.NewReplaySensor(
		motion.BumpTrace(epoch, motion.Vector{X: 1.2, Y: 0.4, Z: -0.3}),
	)
	d := motion.New(sensor)

	det := d.Detect(context.Background())
	require.True(t, det.HasMotion)
	require.Equal(t, motion.RuleStrongBump, det.Rule)
	require.Equal(t, "77e7fec9", motion.HashAcceleration(det.Acceleration))
}
