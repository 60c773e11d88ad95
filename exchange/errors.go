// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package exchange

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrTimeout indicates that a channel's own deadline passed without a
	// match.
	ErrTimeout = errors.New("exchange timed out")

	// ErrStopped indicates that a channel was stopped externally.
	ErrStopped = errors.New("exchange stopped")

	// ErrRadioUnavailable indicates that the short-range radio is denied,
	// unsupported, or never became ready.
	ErrRadioUnavailable = errors.New("radio unavailable")

	// ErrNoAuthToken indicates that no usable auth token could be obtained for
	// the relay service.
	ErrNoAuthToken = errors.New("no usable auth token")
)

// ChannelError attributes a terminal error to the channel that produced it.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s channel: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// Attrs implements log.Attrs.
func (e *ChannelError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("channel", e.Channel)}
}
