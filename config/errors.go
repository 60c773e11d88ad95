// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// InvalidError indicates a configuration value that could not be parsed or
// is out of range.
type InvalidError struct {
	Field   string
	Value   any
	Message string
	Err     error
}

// ErrInvalid is the sentinel wrapped by every InvalidError.
var ErrInvalid = errors.New("invalid configuration")

func (e *InvalidError) Error() string {
	msg := fmt.Sprintf("%s: %s=%v", ErrInvalid, e.Field, e.Value)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalid}
	}
	return []error{ErrInvalid, e.Err}
}

func (e *InvalidError) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("field", e.Field),
		slog.Any("value", e.Value),
	}
}
