// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"time"

	"github.com/sosodev/duration"
)

// Duration is a time.Duration written as an ISO 8601 duration string
// (e.g. "PT20S") in configuration files and environment variables.
type Duration time.Duration

// String returns the duration as an ISO 8601 string.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// MarshalText marshals the duration to an ISO 8601 string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText unmarshals the duration from an ISO 8601 string.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := duration.Parse(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed.ToTimeDuration())
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
