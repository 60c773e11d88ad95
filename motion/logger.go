// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package motion

import (
	"context"
	"log/slog"

	"github.com/alexweingart/nektus-sub006/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) unavailable(ctx context.Context) {
	l.Log(ctx, slog.LevelInfo, "accelerometer unavailable")
}

func (l *logger) detected(ctx context.Context, d *Detection) {
	l.Log(ctx, slog.LevelDebug, "motion detected",
		slog.String("rule", string(d.Rule)),
		slog.Float64("magnitude", d.Magnitude),
		slog.Float64("jerk", d.Jerk),
	)
}

func (l *logger) primed(ctx context.Context, before, after Latches) {
	if before == after || !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	l.Log(ctx, slog.LevelDebug, "motion latches primed",
		slog.Bool("magnitude", after.Magnitude),
		slog.Bool("strong_magnitude", after.StrongMagnitude),
		slog.Bool("jerk", after.Jerk),
		slog.Bool("strong_jerk", after.StrongJerk),
	)
}
