// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package relay matches two devices through a relay service, either by
// correlating bumps reported by both devices or by one device scanning the
// other's session code.
package relay

import "github.com/alexweingart/nektus-sub006/exchange"

type (
	// InitiateRequest opens a relay session.
	InitiateRequest struct {
		SessionID       string                   `json:"sessionId"`
		SharingCategory exchange.SharingCategory `json:"sharingCategory"`
	}

	// InitiateResponse carries the session token, which doubles as the
	// scannable code payload and the correlation key.
	InitiateResponse struct {
		Token string `json:"token"`
	}

	// HitReport describes a detected bump.
	HitReport struct {
		// Timestamp is when the bump was detected, in Unix milliseconds.
		Timestamp int64   `json:"ts"`
		Magnitude float64 `json:"mag"`
		Session   string  `json:"session"`

		SharingCategory exchange.SharingCategory `json:"sharingCategory"`

		// SentAt is when the report was sent, in Unix milliseconds.
		SentAt    int64 `json:"tSent"`
		HitNumber int   `json:"hitNumber"`

		// Vector is the correlation hash of the detected acceleration.
		Vector string `json:"vector,omitempty"`
	}

	// HitResponse may carry an immediate match.
	HitResponse struct {
		Success bool          `json:"success"`
		Matched bool          `json:"matched"`
		Token   string        `json:"token,omitempty"`
		YouAre  exchange.Role `json:"youAre,omitempty"`
	}

	// StatusResponse is the polled match status of a session.
	StatusResponse struct {
		Success    bool       `json:"success"`
		HasMatch   bool       `json:"hasMatch"`
		ScanStatus ScanStatus `json:"scanStatus,omitempty"`
		Match      *Match     `json:"match,omitempty"`
	}

	// Match identifies the matched session and this party's role in it.
	Match struct {
		Token  string        `json:"token"`
		YouAre exchange.Role `json:"youAre"`
	}

	// PairResponse carries the matched party's profile, filtered by the
	// matched party's sharing category.
	PairResponse struct {
		Success bool              `json:"success"`
		Profile *exchange.Profile `json:"profile,omitempty"`
	}

	// ScanStatus is the progress of a scan of this session's code.
	ScanStatus string
)

const (
	ScanPendingAuth ScanStatus = "pending_auth"
	ScanCompleted   ScanStatus = "completed"
)
