// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/retry"
)

type (
	// API is the relay service as used by a Channel.
	API interface {
		Initiate(context.Context, *InitiateRequest) (*InitiateResponse, error)
		Hit(context.Context, *HitReport) (*HitResponse, error)
		Status(ctx context.Context, sessionID string) (*StatusResponse, error)
		Pair(ctx context.Context, token string) (*PairResponse, error)
	}

	// TokenProvider supplies the bearer token of the signed-in user.
	TokenProvider interface {
		AuthToken(ctx context.Context) (string, error)
	}

	// StaticToken is a TokenProvider returning a fixed token.
	StaticToken string

	// TokenFunc adapts a function to TokenProvider.
	TokenFunc func(ctx context.Context) (string, error)

	// Client talks to the relay service over HTTP with JSON bodies.
	Client struct {
		base   *url.URL
		http   *http.Client
		tokens TokenProvider
		retry  retry.Policy
		log    logger
	}
)

var _ API = (*Client)(nil)

// AuthToken implements TokenProvider.
func (t StaticToken) AuthToken(context.Context) (string, error) {
	return string(t), nil
}

// AuthToken implements TokenProvider.
func (f TokenFunc) AuthToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// NewClient creates a client for the relay service at baseURL. Endpoint paths
// are resolved relative to it.
func NewClient(baseURL string, opt ...ClientOption) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid relay base URL %q: unsupported scheme", baseURL)
	}

	var opts ClientOptions
	opts.Apply(opt)

	c := &Client{
		base:   base,
		http:   opts.HTTPClient,
		tokens: opts.TokenProvider,
		retry:  opts.Retry,
		log:    logger{log.Wrap(opts.Logger)},
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.tokens == nil {
		c.tokens = StaticToken("")
	}
	if c.retry == nil {
		c.retry = &retry.ExponentialBackoff{
			MaxAttempts: 4,
			Logger:      opts.Logger,
		}
	}
	return c, nil
}

// Initiate opens a session, retrying transient failures.
func (c *Client) Initiate(
	ctx context.Context,
	req *InitiateRequest,
) (*InitiateResponse, error) {
	var res InitiateResponse
	err := c.retry.Start(ctx, "initiate", retry.Classify(retryable,
		func(ctx context.Context) error {
			return c.do(ctx, http.MethodPost, "initiate", req, &res)
		},
	))
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, &ResponseError{Endpoint: "initiate", Message: "missing token"}
	}
	return &res, nil
}

// Hit reports a bump. It is not retried; a lost report is superseded by the
// next bump or the status poll.
func (c *Client) Hit(ctx context.Context, hit *HitReport) (*HitResponse, error) {
	var res HitResponse
	if err := c.do(ctx, http.MethodPost, "hit", hit, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &ResponseError{Endpoint: "hit", Message: "unsuccessful"}
	}
	return &res, nil
}

// Status fetches the match status of a session. It is not retried; the
// caller polls.
func (c *Client) Status(
	ctx context.Context,
	sessionID string,
) (*StatusResponse, error) {
	var res StatusResponse
	path := "status/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &ResponseError{Endpoint: "status", Message: "unsuccessful"}
	}
	return &res, nil
}

// Pair fetches the matched party's profile, retrying transient failures.
func (c *Client) Pair(ctx context.Context, token string) (*PairResponse, error) {
	var res PairResponse
	path := "pair/" + url.PathEscape(token)
	err := c.retry.Start(ctx, "pair", retry.Classify(retryable,
		func(ctx context.Context) error {
			return c.do(ctx, http.MethodGet, path, nil, &res)
		},
	))
	if err != nil {
		return nil, err
	}
	if !res.Success || res.Profile == nil {
		return nil, &ResponseError{Endpoint: "pair", Message: "no profile"}
	}
	return &res, nil
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	out any,
) error {
	endpoint, _, _ := strings.Cut(path, "/")

	token, err := c.tokens.AuthToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", exchange.ErrNoAuthToken, err)
	}
	if token == "" {
		return exchange.ErrNoAuthToken
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		method,
		c.base.JoinPath(path).String(),
		rdr,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.request(ctx, method, endpoint)
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s: %w", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &ResponseError{
			Endpoint:   endpoint,
			StatusCode: res.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
			Wait:       retryAfter(res.Header.Get("Retry-After"), time.Now()),
		}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &ResponseError{
			Endpoint:   endpoint,
			StatusCode: res.StatusCode,
			Message:    "invalid response body: " + err.Error(),
		}
	}
	return nil
}
