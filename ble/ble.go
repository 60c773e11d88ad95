// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package ble matches two nearby devices over a short-range radio: each side
// advertises a compact payload, scans for peers with the same sharing
// category, deterministically elects an initiator and swaps profiles over a
// GATT characteristic.
package ble

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexweingart/nektus-sub006/exchange"
)

// State is the lifecycle state of a radio exchange.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateScanning   State = "scanning"
	StateDiscovered State = "discovered"
	StateConnecting State = "connecting"
	StateExchanging State = "exchanging"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// GATT identifiers of the exchange service.
const (
	ServiceUUID               = "9a1c0001-5f52-4c2b-9bd2-6f1e7a4b8d10"
	ProfileCharacteristicUUID = "9a1c0002-5f52-4c2b-9bd2-6f1e7a4b8d10"
)

var (
	// ErrAdvertiseUnsupported is returned by radios that cannot advertise as
	// a discoverable peripheral from application code.
	ErrAdvertiseUnsupported = errors.New("advertising not supported")

	// ErrCompleted is returned when an exchange is requested on a channel that
	// has already completed. A new channel is needed for a new attempt.
	ErrCompleted = errors.New("ble exchange already completed")

	// ErrBusy is returned when an exchange is requested while another one is
	// still running on the same channel.
	ErrBusy = errors.New("ble exchange already running")

	errDisconnected = errors.New("peer disconnected")
	errNotReady     = errors.New("radio not ready")
)

// Terminal reports whether no further transitions happen without a new
// exchange.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// RadioError indicates the radio could not be used at all. It unwraps to
// exchange.ErrRadioUnavailable.
type RadioError struct {
	Reason string
	Err    error
}

func (e *RadioError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("radio unavailable: %s: %v", e.Reason, e.Err)
	}
	return "radio unavailable: " + e.Reason
}

func (e *RadioError) Unwrap() []error {
	if e.Err != nil {
		return []error{exchange.ErrRadioUnavailable, e.Err}
	}
	return []error{exchange.ErrRadioUnavailable}
}

func (e *RadioError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("reason", e.Reason)}
}
