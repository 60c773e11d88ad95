// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ble

import (
	"context"
	"log/slog"

	"github.com/alexweingart/nektus-sub006/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) state(ctx context.Context, from, to State) {
	l.Log(ctx, slog.LevelDebug, "ble state changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (l *logger) advertiseUnsupported(ctx context.Context) {
	l.Log(ctx, slog.LevelWarn,
		"radio cannot advertise; this device can only be found by peers that can",
	)
}

func (l *logger) noPeripheral(ctx context.Context) {
	l.Log(ctx, slog.LevelWarn,
		"radio cannot serve the profile characteristic; as non-initiator this device can only match through the relay",
	)
}

func (l *logger) ignored(ctx context.Context, deviceID, reason string) {
	l.Log(ctx, slog.LevelDebug, "ble peer ignored",
		slog.String("device_id", deviceID),
		slog.String("reason", reason),
	)
}

func (l *logger) discovered(ctx context.Context, p *DiscoveredPeer, initiator bool) {
	l.Log(ctx, slog.LevelDebug, "ble peer discovered",
		slog.String("device_id", p.DeviceID),
		slog.String("peer", p.Advertisement.UserID),
		slog.Bool("initiator", initiator),
	)
}

func (l *logger) scanError(ctx context.Context, err error) {
	l.Warn(ctx, "ble scan error", err)
}

func (l *logger) recovering(ctx context.Context, deviceID string, err error) {
	l.Warn(ctx, "ble exchange failed; resuming scan", err,
		slog.String("device_id", deviceID),
	)
}

func (l *logger) matched(ctx context.Context, token string, initiator bool) {
	l.Log(ctx, slog.LevelInfo, "ble match",
		slog.String("token", token),
		slog.Bool("initiator", initiator),
	)
}
