// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hybrid_test

import (
	"context"
	"testing"
	"time"

	"github.com/alexweingart/nektus-sub006/ble"
	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/hybrid"
	"github.com/alexweingart/nektus-sub006/relay"
	"github.com/alexweingart/nektus-sub006/statestore"
	"github.com/stretchr/testify/require"
)

func request(user string) *hybrid.Request {
	return &hybrid.Request{
		UserID:          user,
		Profile:         exchange.Profile{UserID: user},
		SharingCategory: exchange.Personal,
	}
}

func start(c *hybrid.Coordinator, req *hybrid.Request) <-chan result {
	out := make(chan result, 1)
	go func() {
		res, err := c.Start(context.Background(), req)
		out <- result{res, err}
	}()
	return out
}

func wait(t *testing.T, c <-chan result) result {
	t.Helper()
	select {
	case r := <-c:
		return r
	case <-time.After(10 * time.Second):
		require.FailNow(t, "attempt did not finish")
		return result{}
	}
}

func entered(t *testing.T, c <-chan struct{}) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "channel was not started")
	}
}

func TestProject(t *testing.T) {
	cases := []struct {
		available bool
		state     ble.State
		server    exchange.Status
		want      exchange.Status
	}{
		{true, ble.StateStarting, exchange.StatusWaitingForBump, exchange.StatusBLEScanning},
		{true, ble.StateScanning, exchange.StatusIdle, exchange.StatusBLEScanning},
		{true, ble.StateDiscovered, exchange.StatusProcessing, exchange.StatusBLEDiscovered},
		{true, ble.StateConnecting, exchange.StatusWaitingForBump, exchange.StatusBLEConnecting},
		{true, ble.StateExchanging, exchange.StatusWaitingForBump, exchange.StatusBLEExchanging},
		{true, ble.StateFailed, exchange.StatusWaitingForBump, exchange.StatusWaitingForBump},
		{true, ble.StateIdle, exchange.StatusIdle, exchange.StatusIdle},
		{true, ble.StateScanning, exchange.StatusQRScanPending, exchange.StatusQRScanPending},
		{true, ble.StateExchanging, exchange.StatusTimeout, exchange.StatusTimeout},
		{true, ble.StateScanning, exchange.StatusError, exchange.StatusError},
		{false, ble.StateScanning, exchange.StatusWaitingForBump, exchange.StatusWaitingForBump},
		{false, ble.StateFailed, exchange.StatusProcessing, exchange.StatusProcessing},
		{false, ble.StateFailed, exchange.StatusIdle, exchange.StatusBLEUnavailable},
		{false, ble.StateIdle, exchange.StatusQRScanPending, exchange.StatusQRScanPending},
	}
	for _, c := range cases {
		got := hybrid.Project(c.available, c.state, c.server)
		require.Equal(t, c.want, got, "%v %s %s", c.available, c.state, c.server)
	}
}

func TestFirstMatchWinsUnderRace(t *testing.T) {
	for range 50 {
		radio := newFakeBLE(true)
		server := newFakeServer("tok")
		c := hybrid.New(radio, server)

		out := start(c, request("alice"))
		entered(t, radio.entered)
		entered(t, server.entered)

		bleRes := &exchange.MatchResult{Token: "ble-tok", YouAre: exchange.RoleA, MatchType: exchange.MatchBLE}
		srvRes := &exchange.MatchResult{Token: "tok", YouAre: exchange.RoleB, MatchType: exchange.MatchBump}
		radio.results <- result{res: bleRes}
		server.results <- result{res: srvRes}

		r := wait(t, out)
		require.NoError(t, r.err)

		switch r.res {
		case bleRes:
			require.Zero(t, radio.stops.Load())
			require.Equal(t, int32(1), server.disconnects.Load())
			require.Equal(t, exchange.StatusBLEMatched, c.Status())
		case srvRes:
			require.Equal(t, int32(1), radio.stops.Load())
			require.Zero(t, server.disconnects.Load())
			require.Equal(t, exchange.StatusMatched, c.Status())
		default:
			require.FailNow(t, "unexpected result", "%+v", r.res)
		}
	}
}

func TestLaterMatchIsDiscarded(t *testing.T) {
	radio := newFakeBLE(true)
	server := newFakeServer("tok")
	c := hybrid.New(radio, server)

	var statuses statusRecorder
	c.OnStatusChange(statuses.record)

	out := start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)

	win := &exchange.MatchResult{Token: "tok", YouAre: exchange.RoleA, MatchType: exchange.MatchQRScan}
	server.results <- result{res: win}

	r := wait(t, out)
	require.NoError(t, r.err)
	require.Same(t, win, r.res)
	require.Equal(t, exchange.StatusQRScanMatched, c.Status())
	require.Equal(t, int32(1), radio.stops.Load())

	// A match arriving after the attempt settled never reaches the caller.
	radio.results <- result{res: &exchange.MatchResult{Token: "late", MatchType: exchange.MatchBLE}}
	require.Equal(t, exchange.StatusQRScanMatched, c.Status())
	require.Equal(t, exchange.StatusQRScanMatched, statuses.last())
}

func TestLegTimeoutEndsAttempt(t *testing.T) {
	radio := newFakeBLE(true)
	server := newFakeServer("")
	c := hybrid.New(radio, server)

	out := start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)

	server.results <- result{err: exchange.ErrTimeout}

	r := wait(t, out)
	require.ErrorIs(t, r.err, exchange.ErrTimeout)
	require.Equal(t, exchange.StatusTimeout, c.Status())
	require.Equal(t, int32(1), radio.stops.Load())

	// A terminal attempt needs a new session.
	_, err := c.Start(context.Background(), request("alice"))
	require.ErrorIs(t, err, hybrid.ErrEnded)
}

func TestRadioUnavailableDoesNotEndAttempt(t *testing.T) {
	radio := newFakeBLE(false)
	server := newFakeServer("tok")
	c := hybrid.New(radio, server)

	req := request("alice")
	req.MotionPermissionGranted = true
	out := start(c, req)
	entered(t, radio.entered)
	entered(t, server.entered)

	// Without the radio, bump correlation runs on the relay.
	require.True(t, server.request().MotionPermissionGranted)

	radio.results <- result{err: &ble.RadioError{Reason: "permission denied"}}
	require.Eventually(t, func() bool {
		return c.Status() == exchange.StatusWaitingForBump
	}, 5*time.Second, time.Millisecond)

	server.results <- result{res: &exchange.MatchResult{
		Token:     "tok",
		YouAre:    exchange.RoleB,
		MatchType: exchange.MatchBump,
	}}

	r := wait(t, out)
	require.NoError(t, r.err)
	require.Equal(t, exchange.MatchBump, r.res.MatchType)
	require.Equal(t, exchange.StatusMatched, c.Status())
}

func released(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

func TestMotionHeldWhileRadioAvailable(t *testing.T) {
	radio := newFakeBLE(true)
	server := newFakeServer("")
	c := hybrid.New(radio, server)

	req := request("alice")
	req.MotionPermissionGranted = true
	out := start(c, req)
	entered(t, radio.entered)
	entered(t, server.entered)

	sreq := server.request()
	require.True(t, sreq.MotionPermissionGranted)
	require.NotNil(t, sreq.MotionReady)
	require.False(t, released(sreq.MotionReady))
	require.Eventually(t, func() bool {
		return c.Status() == exchange.StatusBLEScanning
	}, 5*time.Second, time.Millisecond)

	c.Stop()
	require.ErrorIs(t, wait(t, out).err, exchange.ErrStopped)
	require.False(t, released(sreq.MotionReady))
}

func TestRadioFailureReleasesMotion(t *testing.T) {
	radio := newFakeBLE(true)
	server := newFakeServer("tok")
	c := hybrid.New(radio, server)

	req := request("alice")
	req.MotionPermissionGranted = true
	out := start(c, req)
	entered(t, radio.entered)
	entered(t, server.entered)

	sreq := server.request()
	require.False(t, released(sreq.MotionReady))

	// The radio looked usable but permission was refused on use.
	radio.results <- result{err: &ble.RadioError{Reason: "permission denied"}}
	require.Eventually(t, func() bool {
		return released(sreq.MotionReady)
	}, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return c.Status() == exchange.StatusWaitingForBump
	}, 5*time.Second, time.Millisecond)

	server.results <- result{res: &exchange.MatchResult{
		Token:     "tok",
		YouAre:    exchange.RoleA,
		MatchType: exchange.MatchBump,
	}}
	r := wait(t, out)
	require.NoError(t, r.err)
	require.Equal(t, exchange.StatusMatched, c.Status())
}

func TestWinnerDoesNotWaitForLoser(t *testing.T) {
	radio := newFakeBLE(true)
	radio.stuck = true
	server := newFakeServer("tok")
	c := hybrid.New(radio, server)

	out := start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)

	win := &exchange.MatchResult{Token: "tok", YouAre: exchange.RoleB, MatchType: exchange.MatchBump}
	server.results <- result{res: win}

	select {
	case r := <-out:
		require.NoError(t, r.err)
		require.Same(t, win, r.res)
	case <-time.After(time.Second):
		require.FailNow(t, "match was held back by the radio leg")
	}
	require.Equal(t, exchange.StatusMatched, c.Status())
	require.Equal(t, int32(1), radio.stops.Load())

	// The radio leg finally returns a match of its own, which is dropped.
	radio.results <- result{res: &exchange.MatchResult{Token: "late", MatchType: exchange.MatchBLE}}
	require.Eventually(t, func() bool {
		return len(radio.results) == 0
	}, 5*time.Second, time.Millisecond)
	require.Equal(t, exchange.StatusMatched, c.Status())
}

func TestErrorOutranksRadioUnavailable(t *testing.T) {
	radio := newFakeBLE(false)
	server := newFakeServer("")
	c := hybrid.New(radio, server)

	out := start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)

	radio.results <- result{err: &ble.RadioError{Reason: "not ready"}}
	server.results <- result{err: &relay.ResponseError{
		Endpoint:   "status",
		StatusCode: 401,
		Message:    "expired",
	}}

	r := wait(t, out)
	require.ErrorIs(t, r.err, exchange.ErrNoAuthToken)
	require.Equal(t, exchange.StatusError, c.Status())
}

func TestStopEndsBothChannels(t *testing.T) {
	radio := newFakeBLE(true)
	server := newFakeServer("tok")
	c := hybrid.New(radio, server)

	out := start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)

	_, err := c.Start(context.Background(), request("alice"))
	require.ErrorIs(t, err, hybrid.ErrBusy)

	c.Stop()
	r := wait(t, out)
	require.ErrorIs(t, r.err, exchange.ErrStopped)
	require.Equal(t, exchange.StatusIdle, c.Status())
	require.Equal(t, int32(1), radio.stops.Load())
	require.Equal(t, int32(1), server.disconnects.Load())

	// Stopping is idempotent and a stopped session can start again.
	c.Stop()
	out = start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)
	c.Stop()
	require.ErrorIs(t, wait(t, out).err, exchange.ErrStopped)
}

func TestStartRequiresUser(t *testing.T) {
	c := hybrid.New(newFakeBLE(true), newFakeServer(""))
	_, err := c.Start(context.Background(), &hybrid.Request{})
	require.ErrorIs(t, err, hybrid.ErrNoUser)
}

func TestResetStartsNewSession(t *testing.T) {
	ctx := context.Background()
	radio := newFakeBLE(true)
	server := newFakeServer("tok")
	records := statestore.NewRecords(statestore.NewMemory())
	c := hybrid.New(radio, server,
		hybrid.WithRecords(records),
		hybrid.WithSessionID("session-1"),
	)
	require.Equal(t, "session-1", c.SessionID())

	out := start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)
	require.Equal(t, "session-1", server.request().SessionID)

	rec, err := records.Load(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, statestore.StateWaiting, rec.State)
	require.Equal(t, "alice", rec.ProfileID)

	server.results <- result{err: exchange.ErrTimeout}
	require.ErrorIs(t, wait(t, out).err, exchange.ErrTimeout)

	c.Reset()
	require.NotEqual(t, "session-1", c.SessionID())
	require.NotEmpty(t, c.SessionID())
	require.Equal(t, exchange.StatusIdle, c.Status())
	require.Equal(t, int32(1), radio.resets.Load())

	_, err = records.Load(ctx, "tok")
	require.ErrorIs(t, err, statestore.ErrNotFound)

	out = start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)
	require.Equal(t, c.SessionID(), server.request().SessionID)
	c.Stop()
	require.ErrorIs(t, wait(t, out).err, exchange.ErrStopped)
}

func TestMatchIsPersistedAndPublished(t *testing.T) {
	ctx := context.Background()
	radio := newFakeBLE(true)
	server := newFakeServer("relay-tok")
	records := statestore.NewRecords(statestore.NewMemory())
	sink := &fakeSink{}
	c := hybrid.New(radio, server,
		hybrid.WithRecords(records),
		hybrid.WithSink(sink),
		hybrid.WithSessionID("session-1"),
	)

	out := start(c, request("alice"))
	entered(t, radio.entered)
	entered(t, server.entered)

	radio.results <- result{res: &exchange.MatchResult{
		Token:     "ble-tok",
		Profile:   &exchange.Profile{UserID: "bob"},
		YouAre:    exchange.RoleA,
		MatchType: exchange.MatchBLE,
	}}
	r := wait(t, out)
	require.NoError(t, r.err)

	rec, err := records.Load(ctx, "ble-tok")
	require.NoError(t, err)
	require.Equal(t, statestore.StateCompleted, rec.State)

	// The relay session is abandoned with its record.
	_, err = records.Load(ctx, "relay-tok")
	require.ErrorIs(t, err, statestore.ErrNotFound)

	events := sink.get()
	require.Len(t, events, 1)
	require.Equal(t, "alice", events[0].UserID)
	require.Equal(t, "bob", events[0].PeerUserID)
	require.Equal(t, "session-1", events[0].SessionID)
	require.Equal(t, "ble-tok", events[0].Token)
	require.Equal(t, exchange.MatchBLE, events[0].MatchType)
}
