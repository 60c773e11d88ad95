// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package exchange_test

import (
	"errors"
	"testing"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/stretchr/testify/require"
)

func TestParseSharingCategory(t *testing.T) {
	for in, want := range map[string]exchange.SharingCategory{
		"P":        exchange.Personal,
		"personal": exchange.Personal,
		" Work ":   exchange.Work,
		"w":        exchange.Work,
	} {
		got, err := exchange.ParseSharingCategory(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := exchange.ParseSharingCategory("family")
	require.Error(t, err)
}

func TestSectionFilter(t *testing.T) {
	p := exchange.Profile{
		UserID: "user-1",
		ContactEntries: []exchange.ContactEntry{
			{FieldType: "name", Value: "Ada", Section: exchange.SectionUniversal, IsVisible: true},
			{FieldType: "phone", Value: "555", Section: exchange.SectionPersonal, IsVisible: true},
			{FieldType: "email", Value: "ada@corp", Section: exchange.SectionWork, IsVisible: true},
			{FieldType: "instagram", Value: "@ada", Section: exchange.SectionPersonal, IsVisible: false},
		},
	}

	personal := exchange.SectionFilter{}.Filter(p, exchange.Personal)
	require.Len(t, personal.ContactEntries, 2)
	require.Equal(t, "name", personal.ContactEntries[0].FieldType)
	require.Equal(t, "phone", personal.ContactEntries[1].FieldType)

	work := exchange.SectionFilter{}.Filter(p, exchange.Work)
	require.Len(t, work.ContactEntries, 2)
	require.Equal(t, "email", work.ContactEntries[1].FieldType)

	// The source profile is left untouched.
	require.Len(t, p.ContactEntries, 4)
}

func TestStatus(t *testing.T) {
	require.True(t, exchange.StatusTimeout.Terminal())
	require.False(t, exchange.StatusBLEScanning.Terminal())
	require.Equal(t, exchange.StatusQRScanMatched, exchange.MatchedStatus(exchange.MatchQRScan))
	require.Equal(t, exchange.StatusBLEMatched, exchange.MatchedStatus(exchange.MatchBLE))
	require.Equal(t, exchange.StatusMatched, exchange.MatchedStatus(exchange.MatchBump))
}

func TestChannelError(t *testing.T) {
	err := &exchange.ChannelError{Channel: "ble", Err: exchange.ErrRadioUnavailable}
	require.True(t, errors.Is(err, exchange.ErrRadioUnavailable))
	require.Equal(t, "ble channel: radio unavailable", err.Error())
}
