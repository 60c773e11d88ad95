// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ble

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
)

// ShortIDLength is the number of user id characters carried in an
// advertisement.
const ShortIDLength = 8

// Advertisement is the compact payload broadcast while scanning.
type Advertisement struct {
	// UserID is the advertiser's short id, see ShortID.
	UserID string `json:"userId"`

	// ButtonPress is the time the exchange was requested, in whole seconds
	// since UTC midnight.
	ButtonPress uint32 `json:"buttonPressTimestamp"`

	SharingCategory exchange.SharingCategory `json:"sharingCategory"`
}

// NewAdvertisement builds the advertisement for a user pressing the exchange
// button at the given time.
func NewAdvertisement(
	userID string,
	pressed time.Time,
	category exchange.SharingCategory,
) Advertisement {
	return Advertisement{
		UserID:          ShortID(userID),
		ButtonPress:     SecondsSinceMidnight(pressed),
		SharingCategory: category,
	}
}

// ShortID returns the prefix of a user id used in advertisements.
func ShortID(userID string) string {
	if len(userID) <= ShortIDLength {
		return userID
	}
	return userID[:ShortIDLength]
}

// SecondsSinceMidnight returns the whole seconds elapsed since midnight UTC.
func SecondsSinceMidnight(t time.Time) uint32 {
	h, m, s := t.UTC().Clock()
	return uint32(h*3600 + m*60 + s)
}

// IsInitiator decides whether self opens the connection to peer. The earlier
// button press initiates; on an exact tie the lexicographically smaller short
// id initiates. For any two advertisements with distinct short ids exactly one
// side elects itself.
func IsInitiator(self, peer Advertisement) bool {
	if self.ButtonPress != peer.ButtonPress {
		return self.ButtonPress < peer.ButtonPress
	}
	return ShortID(self.UserID) < ShortID(peer.UserID)
}

// Encode serializes the advertisement for broadcast.
func (a Advertisement) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// DecodeAdvertisement parses a broadcast advertisement.
func DecodeAdvertisement(data []byte) (Advertisement, error) {
	var a Advertisement
	if err := json.Unmarshal(data, &a); err != nil {
		return Advertisement{}, fmt.Errorf("invalid advertisement: %w", err)
	}
	if a.UserID == "" {
		return Advertisement{}, fmt.Errorf("invalid advertisement: missing user id")
	}
	return a, nil
}

// EncodeProfile serializes a profile for the profile characteristic. The
// profile must already be filtered by sharing category.
func EncodeProfile(p *exchange.Profile) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeProfile parses a profile read from or written to the profile
// characteristic.
func DecodeProfile(data []byte) (*exchange.Profile, error) {
	var p exchange.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid profile payload: %w", err)
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("invalid profile payload: missing user id")
	}
	return &p, nil
}
