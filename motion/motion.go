// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package motion decides from accelerometer samples that a deliberate bump or
// tap occurred, and derives a correlation hash from the detected acceleration.
package motion

import (
	"math"
	"time"
)

type (
	// Vector is a three-axis acceleration.
	Vector struct {
		X float64 `json:"x" yaml:"x"`
		Y float64 `json:"y" yaml:"y"`
		Z float64 `json:"z" yaml:"z"`
	}

	// Sample is a single sensor reading in units of standard gravity. Samples
	// are transient and never retained past the evaluation of the next one.
	Sample struct {
		Acceleration Vector
		Timestamp    time.Time
	}

	// Detection is the outcome of a single Detect call. A negative detection
	// is a normal result, not an error.
	Detection struct {
		HasMotion bool

		// Acceleration is the detected vector in m/s².
		Acceleration Vector
		Magnitude    float64
		Jerk         float64
		Timestamp    time.Time
		Rule         Rule

		// Unavailable is set on negative detections caused by a missing
		// sensor, as opposed to cancellation.
		Unavailable bool
	}
)

const (
	// StandardGravity converts sensor units to m/s².
	StandardGravity = 9.81

	// SampleRate is the nominal sampling frequency in Hz.
	SampleRate = 60

	// WarmupSamples are discarded at the start of every Detect call while the
	// sensor settles.
	WarmupSamples = 3

	MagnitudeThreshold       = 5.0
	StrongMagnitudeThreshold = 10.0
	JerkThreshold            = 100.0
	StrongJerkThreshold      = 200.0
)

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Scale multiplies every axis by f.
func (v Vector) Scale(f float64) Vector {
	return Vector{v.X * f, v.Y * f, v.Z * f}
}
