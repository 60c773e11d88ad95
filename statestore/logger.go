// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package statestore

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) op(ctx context.Context, op, key string) {
	l.Log(ctx, slog.LevelDebug, "state store request",
		slog.String("operation", op),
		slog.String("key", key),
	)
}

func (l *logger) expired(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	l.Log(ctx, slog.LevelDebug, "expired state records removed",
		slog.Int("count", n),
	)
}

func (l *logger) saved(ctx context.Context, rec *Record, ttl time.Duration) {
	l.Log(ctx, slog.LevelInfo, "exchange record saved",
		slog.String("token", rec.Token),
		slog.String("state", string(rec.State)),
		slog.Duration("ttl", ttl),
	)
}

func (l *logger) malformed(ctx context.Context, key string, err error) {
	l.Warn(ctx, "discarding malformed exchange record", err,
		slog.String("key", key),
	)
}
