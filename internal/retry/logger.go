// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) attempt(ctx context.Context, task string, attempt uint64) {
	l.Log(ctx, slog.LevelDebug, "retry attempt",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
	)
}

func (l *logger) backoff(
	ctx context.Context,
	task string,
	attempt uint64,
	interval time.Duration,
	err error,
) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []slog.Attr{
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.Duration("wait", interval),
		slog.String("error", err.Error()),
	}
	if a, ok := err.(log.Attrs); ok {
		attrs = append(attrs, a.Attrs()...)
	}
	l.Log(ctx, slog.LevelDebug, "retry backoff", attrs...)
}

func (l *logger) complete(
	ctx context.Context,
	task string,
	attempt uint64,
	err error,
) {
	switch {
	case err != nil:
		l.Warn(ctx, "retry failed", err,
			slog.String("task", task),
			slog.Uint64("attempt", attempt),
		)
	case attempt > 1:
		l.Log(ctx, slog.LevelInfo, "retry succeeded",
			slog.String("task", task),
			slog.Uint64("attempt", attempt),
		)
	}
}
