// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hybrid

import (
	"context"
	"log/slog"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) start(
	ctx context.Context,
	sessionID string,
	bleAvailable, motion bool,
) {
	l.Log(ctx, slog.LevelInfo, "exchange attempt started",
		slog.String("session_id", sessionID),
		slog.Bool("ble_available", bleAvailable),
		slog.Bool("motion", motion),
	)
}

func (l *logger) status(ctx context.Context, from, to exchange.Status) {
	l.Log(ctx, slog.LevelDebug, "exchange status changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (l *logger) legEnded(ctx context.Context, leg leg, err error) {
	l.Warn(ctx, "match channel ended without a match", err,
		slog.String("channel", leg.String()),
	)
}

func (l *logger) discarded(
	ctx context.Context,
	leg leg,
	res *exchange.MatchResult,
) {
	l.Log(ctx, slog.LevelDebug, "late match discarded",
		slog.String("channel", leg.String()),
		slog.String("token", res.Token),
	)
}

func (l *logger) matched(ctx context.Context, res *exchange.MatchResult) {
	l.Log(ctx, slog.LevelInfo, "exchange matched",
		slog.String("token", res.Token),
		slog.String("match_type", string(res.MatchType)),
		slog.String("you_are", string(res.YouAre)),
	)
}

func (l *logger) persistFailed(ctx context.Context, token string, err error) {
	l.Warn(ctx, "could not persist exchange record", err,
		slog.String("token", token),
	)
}

func (l *logger) publishFailed(ctx context.Context, err error) {
	l.Warn(ctx, "could not publish match event", err)
}

func (l *logger) motionReleased(ctx context.Context, sessionID string) {
	l.Log(ctx, slog.LevelInfo, "radio unavailable, bump detection enabled",
		slog.String("session_id", sessionID),
	)
}
