// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Logger is a wrapper around an slog.Logger with additional helpers and nil
	// checking. The zero value discards everything. Records are stamped by
	// the logger's clock.
	Logger struct {
		logger *slog.Logger
		clock  wallclock.WallClock
	}

	// Attrs represents an object that exposes extra slog attributes to log.
	Attrs interface {
		Attrs() []slog.Attr
	}
)

// Wrap the slog logger.
func Wrap(logger *slog.Logger) Logger {
	return Logger{logger: logger}
}

// With returns a logger that adds the given attributes to every record.
func (l Logger) With(attrs ...any) Logger {
	if l.logger == nil {
		return l
	}
	return Logger{l.logger.With(attrs...), l.clock}
}

// WithClock returns a logger stamping records with the given clock.
func (l Logger) WithClock(clock wallclock.WallClock) Logger {
	l.clock = clock
	return l
}

// Enabled reports whether records at the given level would be emitted.
func (l *Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.logger != nil && l.logger.Enabled(ctx, level)
}

// Log is designed to build logging wrappers; it should not be called directly.
// See: https://pkg.go.dev/log/slog#hdr-Wrapping_output_methods
func (l *Logger) Log(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs ...slog.Attr,
) {
	if !l.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(wallclock.Or(l.clock).Now(), level, msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.logger.Handler().Handle(ctx, r)
}

// Err logs an error with structured logging. Errors implementing Attrs
// contribute their attributes to the record.
func (l *Logger) Err(ctx context.Context, err error, attrs ...slog.Attr) {
	if a, ok := err.(Attrs); ok {
		attrs = append(attrs, a.Attrs()...)
	}
	l.Log(ctx, slog.LevelError, err.Error(), attrs...)
}

// Warn logs a non-fatal error at warning level with the given message.
func (l *Logger) Warn(
	ctx context.Context,
	msg string,
	err error,
	attrs ...slog.Attr,
) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		if a, ok := err.(Attrs); ok {
			attrs = append(attrs, a.Attrs()...)
		}
	}
	l.Log(ctx, slog.LevelWarn, msg, attrs...)
}
