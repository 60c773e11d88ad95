// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package hybrid races the radio and relay match channels against each other
// and delivers the first match of an attempt exactly once.
package hybrid

import (
	"cmp"
	"context"
	"errors"
	"time"

	"github.com/alexweingart/nektus-sub006/ble"
	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/notify"
	"github.com/alexweingart/nektus-sub006/relay"
	"github.com/alexweingart/nektus-sub006/statestore"
)

type (
	// BLEChannel is the radio leg of an attempt; see ble.Channel.
	BLEChannel interface {
		Available(ctx context.Context) bool
		Exchange(ctx context.Context, req *ble.Request) (*exchange.MatchResult, error)
		State() ble.State
		OnStateChange(handler func(ble.State)) func()
		Stop()
		Reset()
	}

	// ServerChannel is the relay leg of an attempt; see relay.Channel.
	ServerChannel interface {
		Exchange(ctx context.Context, req *relay.Request) (*exchange.MatchResult, error)
		Status() exchange.Status
		OnStatusChange(handler func(exchange.Status)) func()
		OnToken(handler func(string)) func()
		Disconnect()
	}

	// EventSink receives match events; see notify.Sink.
	EventSink interface {
		Publish(ctx context.Context, e notify.Event) error
	}

	// RecordStore persists exchange records by token; see
	// statestore.Records.
	RecordStore interface {
		Save(ctx context.Context, rec *statestore.Record) error
		Clear(ctx context.Context, token string) (bool, error)
	}

	// Request describes the local user of an attempt.
	Request struct {
		UserID          string
		Profile         exchange.Profile
		SharingCategory exchange.SharingCategory

		// MotionPermissionGranted allows bump correlation on the relay leg.
		// It is ignored while the radio is available.
		MotionPermissionGranted bool

		// ButtonPress is when the user requested the exchange; zero means
		// the start of the attempt.
		ButtonPress time.Time
	}
)

var (
	// ErrBusy is returned when an attempt is started while another one is
	// still running.
	ErrBusy = errors.New("exchange attempt already running")

	// ErrEnded is returned when an attempt is started after the previous one
	// reached a terminal status; Reset opens a new session first.
	ErrEnded = errors.New("exchange session ended")

	// ErrNoUser is returned for a request without a user ID.
	ErrNoUser = errors.New("exchange request has no user")
)

// Project combines the radio state and the relay status into the status
// shown for an unmatched attempt. Radio progress is more specific than the
// relay's waiting statuses, so it takes precedence while the radio is
// available; every other relay status passes through.
func Project(
	bleAvailable bool,
	bleState ble.State,
	server exchange.Status,
) exchange.Status {
	switch server {
	case exchange.StatusIdle,
		exchange.StatusWaitingForBump,
		exchange.StatusProcessing:
	default:
		return server
	}

	if !bleAvailable {
		if server == exchange.StatusIdle {
			return exchange.StatusBLEUnavailable
		}
		return server
	}

	switch bleState {
	case ble.StateStarting, ble.StateScanning:
		return exchange.StatusBLEScanning
	case ble.StateDiscovered:
		return exchange.StatusBLEDiscovered
	case ble.StateConnecting:
		return exchange.StatusBLEConnecting
	case ble.StateExchanging:
		return exchange.StatusBLEExchanging
	default:
		return server
	}
}

// Resolve the terminal status of an attempt in which neither leg matched,
// in precedence order timeout, error, radio unavailable.
func unmatched(errs ...error) (exchange.Status, error) {
	var timeout, failed, unavailable error
	for _, err := range errs {
		switch {
		case err == nil,
			errors.Is(err, exchange.ErrStopped),
			errors.Is(err, context.Canceled):
		case errors.Is(err, exchange.ErrTimeout):
			timeout = cmp.Or(timeout, err)
		case errors.Is(err, exchange.ErrRadioUnavailable):
			unavailable = cmp.Or(unavailable, err)
		default:
			failed = cmp.Or(failed, err)
		}
	}

	switch {
	case timeout != nil:
		return exchange.StatusTimeout, timeout
	case failed != nil:
		return exchange.StatusError, failed
	case unavailable != nil:
		return exchange.StatusBLEUnavailable, unavailable
	default:
		return exchange.StatusIdle, exchange.ErrStopped
	}
}
