// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) request(ctx context.Context, method, endpoint string) {
	l.Log(ctx, slog.LevelDebug, "relay request",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
	)
}

func (l *logger) token(ctx context.Context, token string) {
	l.Log(ctx, slog.LevelInfo, "relay session opened",
		slog.String("token", token),
	)
}

func (l *logger) status(ctx context.Context, from, to exchange.Status) {
	l.Log(ctx, slog.LevelDebug, "relay status changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (l *logger) deadline(ctx context.Context, deadline time.Time) {
	l.Log(ctx, slog.LevelInfo, "scan pending authentication; deadline replaced",
		slog.Time("deadline", deadline),
	)
}

func (l *logger) pollFailed(ctx context.Context, err error) {
	l.Warn(ctx, "relay status poll failed", err)
}

func (l *logger) hitFailed(ctx context.Context, hit int, err error) {
	l.Warn(ctx, "relay hit report failed", err, slog.Int("hit_number", hit))
}

func (l *logger) hit(ctx context.Context, hit *HitReport) {
	l.Log(ctx, slog.LevelDebug, "bump reported",
		slog.Int("hit_number", hit.HitNumber),
		slog.Float64("magnitude", hit.Magnitude),
		slog.String("vector", hit.Vector),
	)
}

func (l *logger) motionUnavailable(ctx context.Context) {
	l.Log(ctx, slog.LevelInfo,
		"accelerometer unavailable; relay matching continues by scan only",
	)
}

func (l *logger) matched(ctx context.Context, m *pendingMatch) {
	l.Log(ctx, slog.LevelInfo, "relay match",
		slog.String("token", m.token),
		slog.String("you_are", string(m.youAre)),
		slog.String("match_type", string(m.matchType)),
	)
}
