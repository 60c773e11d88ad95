// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relaysrv

import (
	"log/slog"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/options"
)

type (
	// Option represents a single option for the server.
	Option interface{ server(*Options) }

	// Options are the resolved options for the server.
	Options struct {
		Window time.Duration
		Filter exchange.ProfileFilter
		Logger *slog.Logger
	}

	// WithWindow sets the bump correlation window.
	WithWindow time.Duration

	// This option is not used directly; see WithFilter below.
	withFilter struct{ exchange.ProfileFilter }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.server(o)
	}
}

func (o *Options) server(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithWindow) server(opt *Options) {
	opt.Window = time.Duration(o)
}

// WithFilter sets the filter applied to profiles served by pair.
func WithFilter(f exchange.ProfileFilter) Option {
	return withFilter{f}
}

func (o withFilter) server(opt *Options) {
	opt.Filter = o.ProfileFilter
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) server(opt *Options) {
	opt.Logger = o.Logger
}
