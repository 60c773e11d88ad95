// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package motion

import (
	"log/slog"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/options"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Option represents a single option for the detector.
	Option interface{ detector(*Options) }

	// Options are the resolved options for the detector.
	Options struct {
		SampleInterval time.Duration
		Clock          wallclock.WallClock
		Logger         *slog.Logger
	}

	// WithSampleInterval overrides the nominal sensor update interval.
	WithSampleInterval time.Duration

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }

	// This option is not used directly; see WithClock below.
	withClock struct{ wallclock.WallClock }
)

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.detector(o)
	}
}

func (o *Options) detector(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithSampleInterval) detector(opt *Options) {
	opt.SampleInterval = time.Duration(o)
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) detector(opt *Options) {
	opt.Logger = o.Logger
}

// WithClock sets the clock used for session timestamps and pacing.
func WithClock(clock wallclock.WallClock) Option {
	return withClock{clock}
}

func (o withClock) detector(opt *Options) {
	opt.Clock = o.WallClock
}
