// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package exchange defines the data model shared by the proximity match
// channels: sharing categories, exchanged profiles, match results, and the
// coordinated exchange status.
package exchange

import (
	"fmt"
	"strings"
)

type (
	// SharingCategory selects which profile fields are exchanged.
	SharingCategory string

	// Role identifies which side of a pair a device ended up on.
	Role string

	// MatchType identifies the channel that produced a match.
	MatchType string

	// MatchResult is produced exactly once per exchange attempt.
	MatchResult struct {
		// Token identifies the exchange; for server matches it is the relay
		// session token, for radio matches it is freshly generated.
		Token string `json:"token"`

		// Profile is the matched party's profile, already filtered by the
		// sharing category on the sending side.
		Profile *Profile `json:"profile,omitempty"`

		YouAre    Role      `json:"youAre"`
		MatchType MatchType `json:"matchType"`
	}
)

const (
	Personal SharingCategory = "P"
	Work     SharingCategory = "W"

	RoleA Role = "A"
	RoleB Role = "B"

	MatchBLE    MatchType = "ble"
	MatchBump   MatchType = "bump"
	MatchQRScan MatchType = "qr-scan"
)

// ParseSharingCategory accepts either the wire tag ("P", "W") or the long
// name ("personal", "work"), case-insensitively.
func ParseSharingCategory(s string) (SharingCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "personal":
		return Personal, nil
	case "w", "work":
		return Work, nil
	default:
		return "", fmt.Errorf("unknown sharing category %q", s)
	}
}

// Valid reports whether c is one of the known categories.
func (c SharingCategory) Valid() bool {
	return c == Personal || c == Work
}

// Section returns the profile section name associated with the category.
func (c SharingCategory) Section() string {
	if c == Work {
		return SectionWork
	}
	return SectionPersonal
}

func (c SharingCategory) String() string {
	switch c {
	case Personal:
		return "Personal"
	case Work:
		return "Work"
	default:
		return string(c)
	}
}
