// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ble

import (
	"log/slog"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/options"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Option represents a single option for the channel.
	Option interface{ channel(*Options) }

	// Options are the resolved options for the channel.
	Options struct {
		ReadyTimeout    time.Duration
		ExchangeTimeout time.Duration
		Debounce        time.Duration
		Filter          exchange.ProfileFilter
		Clock           wallclock.WallClock
		Logger          *slog.Logger
	}

	// WithReadyTimeout bounds the wait for the radio to power on.
	WithReadyTimeout time.Duration

	// WithExchangeTimeout bounds a whole exchange, from start to match.
	WithExchangeTimeout time.Duration

	// WithDebounce sets the per-device discovery debounce window.
	WithDebounce time.Duration

	// This option is not used directly; see WithFilter below.
	withFilter struct{ exchange.ProfileFilter }

	// This option is not used directly; see WithClock below.
	withClock struct{ wallclock.WallClock }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	DefaultReadyTimeout    = 10 * time.Second
	DefaultExchangeTimeout = 30 * time.Second
)

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.channel(o)
	}
}

func (o *Options) channel(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithReadyTimeout) channel(opt *Options) {
	opt.ReadyTimeout = time.Duration(o)
}

func (o WithExchangeTimeout) channel(opt *Options) {
	opt.ExchangeTimeout = time.Duration(o)
}

func (o WithDebounce) channel(opt *Options) {
	opt.Debounce = time.Duration(o)
}

// WithFilter sets the filter applied to the local profile before it is sent.
func WithFilter(f exchange.ProfileFilter) Option {
	return withFilter{f}
}

func (o withFilter) channel(opt *Options) {
	opt.Filter = o.ProfileFilter
}

// WithClock sets the clock driving the channel's timeouts and debounce.
func WithClock(clock wallclock.WallClock) Option {
	return withClock{clock}
}

func (o withClock) channel(opt *Options) {
	opt.Clock = o.WallClock
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) channel(opt *Options) {
	opt.Logger = o.Logger
}
