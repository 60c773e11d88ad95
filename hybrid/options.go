// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hybrid

import (
	"log/slog"

	"github.com/alexweingart/nektus-sub006/internal/options"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Option represents a single option for the coordinator.
	Option interface{ coordinator(*Options) }

	// Options are the resolved options for the coordinator.
	Options struct {
		SessionID string
		Records   RecordStore
		Sink      EventSink
		Clock     wallclock.WallClock
		Logger    *slog.Logger
	}

	// WithSessionID sets the session ID of the first attempt. A random one is
	// generated if unset.
	WithSessionID string

	// This option is not used directly; see WithRecords below.
	withRecords struct{ RecordStore }

	// This option is not used directly; see WithSink below.
	withSink struct{ EventSink }

	// This option is not used directly; see WithClock below.
	withClock struct{ wallclock.WallClock }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.coordinator(o)
	}
}

func (o *Options) coordinator(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithSessionID) coordinator(opt *Options) {
	opt.SessionID = string(o)
}

// WithRecords persists the state of each attempt under its token.
func WithRecords(records RecordStore) Option {
	return withRecords{records}
}

func (o withRecords) coordinator(opt *Options) {
	opt.Records = o.RecordStore
}

// WithSink publishes every delivered match.
func WithSink(sink EventSink) Option {
	return withSink{sink}
}

func (o withSink) coordinator(opt *Options) {
	opt.Sink = o.EventSink
}

// WithClock sets the clock used to stamp attempts and events.
func WithClock(clock wallclock.WallClock) Option {
	return withClock{clock}
}

func (o withClock) coordinator(opt *Options) {
	opt.Clock = o.WallClock
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) coordinator(opt *Options) {
	opt.Logger = o.Logger
}
