// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package notify

import (
	"context"
	"log/slog"

	"github.com/eclipse/paho.golang/paho"

	"github.com/alexweingart/nektus-sub006/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) connected(ctx context.Context, clientID string) {
	l.Log(ctx, slog.LevelInfo, "connected to broker",
		slog.String("client_id", clientID),
	)
}

func (l *logger) lost(ctx context.Context, err error) {
	l.Warn(ctx, "broker connection lost", err)
}

func (l *logger) serverDisconnect(ctx context.Context, d *paho.Disconnect) {
	attrs := []slog.Attr{slog.Int("reason_code", int(d.ReasonCode))}
	if d.Properties != nil && d.Properties.ReasonString != "" {
		attrs = append(attrs, slog.String("reason", d.Properties.ReasonString))
	}
	l.Log(ctx, slog.LevelWarn, "broker disconnected the sink", attrs...)
}

func (l *logger) published(ctx context.Context, pub *paho.Publish) {
	l.Log(ctx, slog.LevelDebug, "match event published",
		slog.String("topic", pub.Topic),
		slog.Int("qos", int(pub.QoS)),
	)
}
