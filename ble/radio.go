// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ble

import "context"

type (
	// Radio is the platform radio stack used by a Channel.
	Radio interface {
		// Available reports whether the hardware is present at all.
		Available(ctx context.Context) bool

		// RequestPermission asks the user for radio access. A denial is
		// reported as false with a nil error.
		RequestPermission(ctx context.Context) (bool, error)

		// WaitReady blocks until the radio is powered on and usable.
		WaitReady(ctx context.Context) error

		// Advertise broadcasts the payload until stop is called. Radios that
		// cannot advertise return ErrAdvertiseUnsupported.
		Advertise(ctx context.Context, payload []byte) (stop func(), err error)

		// Scan reports every received advertisement to onDiscover and any
		// scan-level failure to onError until stop is called. Callbacks may
		// run on any goroutine and must not block for long.
		Scan(
			ctx context.Context,
			onDiscover func(Discovery),
			onError func(error),
		) (stop func(), err error)

		// Connect opens a GATT connection to the device.
		Connect(ctx context.Context, deviceID string) (Link, error)
	}

	// Peripheral is implemented by radios that can also serve the profile
	// characteristic, letting the non-initiating side complete an exchange.
	Peripheral interface {
		// Serve exposes payload for reads of the profile characteristic. It
		// calls onWrite with every payload a central writes to it and onRead
		// after a central has read the payload. Callbacks name the central
		// by device id.
		Serve(
			ctx context.Context,
			payload []byte,
			onWrite func(central string, data []byte),
			onRead func(central string),
		) (stop func(), err error)
	}

	// Link is an open GATT connection.
	Link interface {
		DeviceID() string

		// Disconnected is closed when the connection is lost.
		Disconnected() <-chan struct{}

		WriteCharacteristic(
			ctx context.Context,
			service, characteristic string,
			data []byte,
		) error
		ReadCharacteristic(
			ctx context.Context,
			service, characteristic string,
		) ([]byte, error)

		Close() error
	}

	// Discovery is a single advertisement received while scanning.
	Discovery struct {
		DeviceID string
		Payload  []byte
	}
)
