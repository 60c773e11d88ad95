// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package notify

import (
	"log/slog"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/options"
	"github.com/alexweingart/nektus-sub006/internal/retry"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Option represents a single option for the sink.
	Option interface{ sink(*Options) }

	// Options are the resolved options for the sink.
	Options struct {
		ClientID      string
		TopicPrefix   string
		QoS           byte
		MessageExpiry time.Duration
		KeepAlive     time.Duration
		Username      string
		Password      []byte
		Retry         retry.Policy
		Clock         wallclock.WallClock
		Logger        *slog.Logger
	}

	// WithClientID sets the MQTT client ID. A random one is generated if
	// unset.
	WithClientID string

	// WithTopicPrefix sets the prefix of the per-user event topic.
	WithTopicPrefix string

	// WithQoS sets the publish QoS (0 or 1).
	WithQoS byte

	// WithMessageExpiry sets how long the broker retains undelivered events.
	WithMessageExpiry time.Duration

	// WithKeepAlive sets the MQTT keep-alive interval.
	WithKeepAlive time.Duration

	// WithUsernamePassword sets the credentials sent on connect.
	WithUsernamePassword struct {
		Username string
		Password []byte
	}

	// This option is not used directly; see WithRetry below.
	withRetry struct{ retry.Policy }

	// This option is not used directly; see WithClock below.
	withClock struct{ wallclock.WallClock }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	DefaultTopicPrefix   = "nektus/users"
	DefaultQoS           = 1
	DefaultMessageExpiry = time.Minute
	DefaultKeepAlive     = 30 * time.Second
)

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.sink(o)
	}
}

func (o *Options) sink(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithClientID) sink(opt *Options) {
	opt.ClientID = string(o)
}

func (o WithTopicPrefix) sink(opt *Options) {
	opt.TopicPrefix = string(o)
}

func (o WithQoS) sink(opt *Options) {
	opt.QoS = byte(o)
}

func (o WithMessageExpiry) sink(opt *Options) {
	opt.MessageExpiry = time.Duration(o)
}

func (o WithKeepAlive) sink(opt *Options) {
	opt.KeepAlive = time.Duration(o)
}

func (o WithUsernamePassword) sink(opt *Options) {
	opt.Username = o.Username
	opt.Password = o.Password
}

// WithRetry sets the policy for reconnect-and-publish attempts.
func WithRetry(policy retry.Policy) Option {
	return withRetry{policy}
}

func (o withRetry) sink(opt *Options) {
	opt.Retry = o.Policy
}

// WithClock sets the clock used to stamp events.
func WithClock(clock wallclock.WallClock) Option {
	return withClock{clock}
}

func (o withClock) sink(opt *Options) {
	opt.Clock = o.WallClock
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) sink(opt *Options) {
	opt.Logger = o.Logger
}
