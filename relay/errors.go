// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/retry"
)

// ErrResponse indicates the relay service rejected or failed a request.
var ErrResponse = errors.New("relay error response")

// ResponseError is a failed relay request. Authorization failures also
// unwrap to exchange.ErrNoAuthToken.
type ResponseError struct {
	Endpoint   string
	StatusCode int
	Message    string

	// Wait is the delay the relay asked for before the request is retried.
	Wait time.Duration
}

var _ retry.Delayer = (*ResponseError)(nil)

func (e *ResponseError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("relay %s: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("relay %s: %d %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *ResponseError) Unwrap() []error {
	if e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden {
		return []error{ErrResponse, exchange.ErrNoAuthToken}
	}
	return []error{ErrResponse}
}

func (e *ResponseError) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("endpoint", e.Endpoint),
		slog.Int("status_code", e.StatusCode),
	}
	if e.Wait > 0 {
		attrs = append(attrs, slog.Duration("retry_after", e.Wait))
	}
	return attrs
}

// RetryAfter implements retry.Delayer.
func (e *ResponseError) RetryAfter() time.Duration {
	return e.Wait
}

// Parse a Retry-After header, given either in seconds or as an HTTP date.
func retryAfter(header string, now time.Time) time.Duration {
	if header == "" {
		return 0
	}
	if s, err := strconv.Atoi(header); err == nil {
		return max(time.Duration(s)*time.Second, 0)
	}
	if t, err := http.ParseTime(header); err == nil {
		return max(t.Sub(now), 0)
	}
	return 0
}

// Report whether a failed request may succeed if sent again.
func retryable(err error) bool {
	var re *ResponseError
	switch {
	case errors.Is(err, exchange.ErrNoAuthToken),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.As(err, &re):
		return re.StatusCode >= http.StatusInternalServerError ||
			re.StatusCode == http.StatusTooManyRequests
	default:
		return true
	}
}

// Report whether an error ends the exchange instead of being retried on the
// next poll or bump.
func fatal(err error) bool {
	return errors.Is(err, exchange.ErrNoAuthToken)
}
