// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package statestore

import (
	"log/slog"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/options"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// SetOption represents a single option for the Set method.
	SetOption interface{ set(*SetOptions) }

	// SetOptions are the resolved options for the Set method.
	SetOptions struct {
		Expiry    time.Duration
		Condition Condition
	}

	// Option represents a single option for a store or record set.
	Option interface{ store(*Options) }

	// Options are the resolved store options.
	Options struct {
		TTL    time.Duration
		Clock  wallclock.WallClock
		Logger *slog.Logger
	}

	// Condition specifies the conditions under which the key will be set.
	Condition string

	// WithExpiry indicates that the key should expire after the given
	// duration. Zero means the key never expires.
	WithExpiry time.Duration

	// WithCondition indicates that the key should only be set under the given
	// conditions.
	WithCondition Condition

	// WithTTL sets the expiry applied to every record saved by a Records set.
	WithTTL time.Duration

	// This option is not used directly; see WithClock below.
	withClock struct{ wallclock.WallClock }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	// Always indicates that the key should always be set to the provided
	// value. This is the default.
	Always Condition = ""

	// NotExists indicates that the key should only be set if it does not
	// exist (or has expired).
	NotExists Condition = "NX"

	// DefaultTTL is how long exchange records are kept.
	DefaultTTL = 5 * time.Minute
)

// Apply resolves the provided list of options.
func (o *SetOptions) Apply(opts []SetOption, rest ...SetOption) {
	for opt := range options.Apply[SetOption](opts, rest...) {
		opt.set(o)
	}
}

func (o *SetOptions) set(opt *SetOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithExpiry) set(opt *SetOptions) {
	opt.Expiry = time.Duration(o)
}

func (o WithCondition) set(opt *SetOptions) {
	opt.Condition = Condition(o)
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.store(o)
	}
}

func (o *Options) store(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithTTL) store(opt *Options) {
	opt.TTL = time.Duration(o)
}

// WithClock sets the clock used to evaluate expiry.
func WithClock(clock wallclock.WallClock) Option {
	return withClock{clock}
}

func (o withClock) store(opt *Options) {
	opt.Clock = o.WallClock
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) store(opt *Options) {
	opt.Logger = o.Logger
}
