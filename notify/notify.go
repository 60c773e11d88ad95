// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package notify publishes match-found events to an MQTT broker so that other
// devices and services of the same user can react to a completed exchange.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/eclipse/paho.golang/packets"
)

type (
	// Event is the JSON payload published when an exchange matches.
	Event struct {
		UserID     string             `json:"userId"`
		PeerUserID string             `json:"peerUserId,omitempty"`
		SessionID  string             `json:"sessionId,omitempty"`
		Token      string             `json:"token"`
		MatchType  exchange.MatchType `json:"matchType"`
		YouAre     exchange.Role      `json:"youAre"`
		MatchedAt  time.Time          `json:"matchedAt"`
	}

	// ConnectionProvider returns a net.Conn connected to an MQTT broker. The
	// returned connection must be safe for concurrent writes.
	ConnectionProvider func(context.Context) (net.Conn, error)

	// ConnectionError indicates that the broker could not be reached or
	// refused the connection.
	ConnectionError struct {
		Message string
		Err     error
	}
)

var (
	ErrClosed     = errors.New("sink closed")
	ErrConnection = errors.New("broker connection failed")
)

// NewEvent builds the event for a match delivered to the given user.
func NewEvent(
	userID, sessionID string,
	res *exchange.MatchResult,
	at time.Time,
) Event {
	e := Event{
		UserID:    userID,
		SessionID: sessionID,
		Token:     res.Token,
		MatchType: res.MatchType,
		YouAre:    res.YouAre,
		MatchedAt: at.UTC(),
	}
	if res.Profile != nil {
		e.PeerUserID = res.Profile.UserID
	}
	return e
}

// Topic returns the topic events for the given user are published on.
func Topic(prefix, userID string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return userID + "/match"
	}
	return prefix + "/" + userID + "/match"
}

// TCPConnection is a ConnectionProvider that connects to a broker over TCP at
// the given host:port address.
func TCPConnection(address string) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, &ConnectionError{
				Message: "error opening TCP connection",
				Err:     err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConnection}
	}
	return []error{ErrConnection, e.Err}
}

func (e *ConnectionError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("reason", e.Message)}
}
