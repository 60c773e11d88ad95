// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/options"
	"github.com/alexweingart/nektus-sub006/internal/retry"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// ClientOption represents a single option for the client.
	ClientOption interface{ client(*ClientOptions) }

	// ClientOptions are the resolved options for the client.
	ClientOptions struct {
		HTTPClient    *http.Client
		TokenProvider TokenProvider
		Retry         retry.Policy
		Logger        *slog.Logger
	}

	// ChannelOption represents a single option for the channel.
	ChannelOption interface{ channel(*ChannelOptions) }

	// ChannelOptions are the resolved options for the channel.
	ChannelOptions struct {
		PollInterval       time.Duration
		BaseTimeout        time.Duration
		PendingAuthTimeout time.Duration
		Clock              wallclock.WallClock
		Logger             *slog.Logger
	}

	// WithPollInterval sets the interval between status polls.
	WithPollInterval time.Duration

	// WithBaseTimeout sets how long a session waits for a match.
	WithBaseTimeout time.Duration

	// WithPendingAuthTimeout sets the deadline, counted from the moment a
	// pending scan is first observed, that replaces the base timeout.
	WithPendingAuthTimeout time.Duration

	// This option is not used directly; see WithHTTPClient below.
	withHTTPClient struct{ *http.Client }

	// This option is not used directly; see WithTokenProvider below.
	withTokenProvider struct{ TokenProvider }

	// This option is not used directly; see WithRetry below.
	withRetry struct{ retry.Policy }

	// This option is not used directly; see WithClock below.
	withClock struct{ wallclock.WallClock }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	DefaultPollInterval       = time.Second
	DefaultBaseTimeout        = 20 * time.Second
	DefaultPendingAuthTimeout = 60 * time.Second
)

// Apply resolves the provided list of options.
func (o *ClientOptions) Apply(opts []ClientOption, rest ...ClientOption) {
	for opt := range options.Apply[ClientOption](opts, rest...) {
		opt.client(o)
	}
}

func (o *ClientOptions) client(opt *ClientOptions) {
	if o != nil {
		*opt = *o
	}
}

// Apply resolves the provided list of options.
func (o *ChannelOptions) Apply(opts []ChannelOption, rest ...ChannelOption) {
	for opt := range options.Apply[ChannelOption](opts, rest...) {
		opt.channel(o)
	}
}

func (o *ChannelOptions) channel(opt *ChannelOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithPollInterval) channel(opt *ChannelOptions) {
	opt.PollInterval = time.Duration(o)
}

func (o WithBaseTimeout) channel(opt *ChannelOptions) {
	opt.BaseTimeout = time.Duration(o)
}

func (o WithPendingAuthTimeout) channel(opt *ChannelOptions) {
	opt.PendingAuthTimeout = time.Duration(o)
}

// WithHTTPClient sets the HTTP client used for relay requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return withHTTPClient{c}
}

func (o withHTTPClient) client(opt *ClientOptions) {
	opt.HTTPClient = o.Client
}

// WithTokenProvider sets the source of the bearer token.
func WithTokenProvider(p TokenProvider) ClientOption {
	return withTokenProvider{p}
}

func (o withTokenProvider) client(opt *ClientOptions) {
	opt.TokenProvider = o.TokenProvider
}

// WithRetry sets the retry policy for session initiation and profile fetch.
func WithRetry(p retry.Policy) ClientOption {
	return withRetry{p}
}

func (o withRetry) client(opt *ClientOptions) {
	opt.Retry = o.Policy
}

// WithClock sets the clock driving the channel's poll and timeout timers.
func WithClock(clock wallclock.WallClock) ChannelOption {
	return withClock{clock}
}

func (o withClock) channel(opt *ChannelOptions) {
	opt.Clock = o.WallClock
}

// WithLogger enables logging with the provided slog logger. It applies to
// both clients and channels.
func WithLogger(logger *slog.Logger) interface {
	ClientOption
	ChannelOption
} {
	return withLogger{logger}
}

func (o withLogger) client(opt *ClientOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) channel(opt *ChannelOptions) {
	opt.Logger = o.Logger
}
