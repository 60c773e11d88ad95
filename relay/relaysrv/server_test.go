// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relaysrv_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/motion"
	"github.com/alexweingart/nektus-sub006/relay"
	"github.com/alexweingart/nektus-sub006/relay/relaysrv"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 8, 1, 18, 0, 0, 0, time.UTC)

func profile(id string) exchange.Profile {
	return exchange.Profile{
		UserID: id,
		ContactEntries: []exchange.ContactEntry{
			{FieldType: "name", Value: id, Section: exchange.SectionUniversal, IsVisible: true},
			{FieldType: "phone", Value: "555", Section: exchange.SectionPersonal, IsVisible: true},
			{FieldType: "email", Value: id + "@corp", Section: exchange.SectionWork, IsVisible: true},
		},
	}
}

func call(
	t *testing.T,
	h http.Handler,
	method, path, auth string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func initiate(t *testing.T, h http.Handler, auth, session string, c exchange.SharingCategory) string {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/initiate", auth, &relay.InitiateRequest{
		SessionID:       session,
		SharingCategory: c,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var res relay.InitiateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func hit(t *testing.T, h http.Handler, auth string, report *relay.HitReport) relay.HitResponse {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/hit", auth, report)
	require.Equal(t, http.StatusOK, rec.Code)
	var res relay.HitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func TestRequiresBearerToken(t *testing.T) {
	srv := relaysrv.New()
	rec := call(t, srv, http.MethodGet, "/status/s1", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownSessionAndToken(t *testing.T) {
	srv := relaysrv.New()
	require.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/status/nope", "a", nil).Code)
	require.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/pair/nope", "a", nil).Code)
	require.Equal(t, http.StatusNotFound, call(t, srv, http.MethodPost, "/qr/nope/scan", "a", nil).Code)
	require.Equal(t, http.StatusNotFound,
		call(t, srv, http.MethodPost, "/hit", "a", &relay.HitReport{Session: "nope"}).Code)
}

func TestInitiateIsIdempotentPerSession(t *testing.T) {
	srv := relaysrv.New()
	first := initiate(t, srv, "a", "s1", exchange.Personal)
	require.Equal(t, first, initiate(t, srv, "a", "s1", exchange.Personal))
	require.NotEqual(t, first, initiate(t, srv, "a", "s2", exchange.Personal))

	rec := call(t, srv, http.MethodPost, "/initiate", "a",
		&relay.InitiateRequest{SessionID: "s3", SharingCategory: "X"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHitCorrelation(t *testing.T) {
	ms := t0.UnixMilli()

	for name, tc := range map[string]struct {
		second  relay.HitReport
		matched bool
	}{
		"same vector within window": {
			relay.HitReport{Session: "s2", Timestamp: ms + 400, Vector: "abc", SharingCategory: exchange.Personal},
			true,
		},
		"missing vector": {
			relay.HitReport{Session: "s2", Timestamp: ms - 900, SharingCategory: exchange.Personal},
			true,
		},
		"different vector": {
			relay.HitReport{Session: "s2", Timestamp: ms, Vector: "abd", SharingCategory: exchange.Personal},
			false,
		},
		"outside window": {
			relay.HitReport{Session: "s2", Timestamp: ms + 1001, Vector: "abc", SharingCategory: exchange.Personal},
			false,
		},
		"different category": {
			relay.HitReport{Session: "s2", Timestamp: ms, Vector: "abc", SharingCategory: exchange.Work},
			false,
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := relaysrv.New()
			srv.Register("a", profile("alice"))
			srv.Register("b", profile("bob"))
			tokA := initiate(t, srv, "a", "s1", exchange.Personal)
			tokB := initiate(t, srv, "b", "s2", tc.second.SharingCategory)

			first := hit(t, srv, "a", &relay.HitReport{
				Session: "s1", Timestamp: ms, Vector: "abc", SharingCategory: exchange.Personal, HitNumber: 1,
			})
			require.True(t, first.Success)
			require.False(t, first.Matched)

			second := hit(t, srv, "b", &tc.second)
			require.Equal(t, tc.matched, second.Matched)
			if !tc.matched {
				return
			}
			require.Equal(t, tokB, second.Token)
			require.Equal(t, exchange.RoleB, second.YouAre)

			rec := call(t, srv, http.MethodGet, "/status/s1", "a", nil)
			var st relay.StatusResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
			require.True(t, st.HasMatch)
			require.Equal(t, &relay.Match{Token: tokA, YouAre: exchange.RoleA}, st.Match)

			rec = call(t, srv, http.MethodGet, "/pair/"+tokA, "a", nil)
			var pair relay.PairResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&pair))
			require.Equal(t, "bob", pair.Profile.UserID)
			require.Len(t, pair.Profile.ContactEntries, 2)
		})
	}
}

func newChannel(
	t *testing.T,
	url, auth string,
	det relay.BumpDetector,
) *relay.Channel {
	client, err := relay.NewClient(url, relay.WithTokenProvider(relay.StaticToken(auth)))
	require.NoError(t, err)
	return relay.NewChannel(client, det,
		relay.WithPollInterval(10*time.Millisecond),
		relay.WithBaseTimeout(5*time.Second),
	)
}

type outcome struct {
	res *exchange.MatchResult
	err error
}

func run(c *relay.Channel, req *relay.Request) <-chan outcome {
	out := make(chan outcome, 1)
	go func() {
		res, err := c.Exchange(context.Background(), req)
		out <- outcome{res, err}
	}()
	return out
}

func wait(t *testing.T, c <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-c:
		return o
	case <-time.After(10 * time.Second):
		require.FailNow(t, "exchange did not finish")
		return outcome{}
	}
}

func TestBumpMatchEndToEnd(t *testing.T) {
	srv := relaysrv.New()
	srv.Register("alice-auth", profile("alice"))
	srv.Register("bob-auth", profile("bob"))
	hs := httptest.NewServer(srv)
	defer hs.Close()

	// Both phones feel the same bump.
	peak := motion.Vector{X: 1.2, Y: 0.4, Z: -0.3}
	sensor := func() *motion.Detector {
		return motion.New(motion.NewReplaySensor(motion.BumpTrace(t0, peak)))
	}

	alice := newChannel(t, hs.URL, "alice-auth", sensor())
	bob := newChannel(t, hs.URL, "bob-auth", sensor())

	a := run(alice, &relay.Request{
		SessionID:               "alice-session",
		SharingCategory:         exchange.Personal,
		MotionPermissionGranted: true,
	})
	b := run(bob, &relay.Request{
		SessionID:               "bob-session",
		SharingCategory:         exchange.Personal,
		MotionPermissionGranted: true,
	})

	oa, ob := wait(t, a), wait(t, b)
	require.NoError(t, oa.err)
	require.NoError(t, ob.err)

	require.Equal(t, exchange.MatchBump, oa.res.MatchType)
	require.Equal(t, exchange.MatchBump, ob.res.MatchType)
	require.ElementsMatch(t,
		[]exchange.Role{exchange.RoleA, exchange.RoleB},
		[]exchange.Role{oa.res.YouAre, ob.res.YouAre},
	)
	require.Equal(t, "bob", oa.res.Profile.UserID)
	require.Equal(t, "alice", ob.res.Profile.UserID)
	require.Equal(t, alice.Token(), oa.res.Token)
	require.Equal(t, bob.Token(), ob.res.Token)
}

func TestScanMatchEndToEnd(t *testing.T) {
	srv := relaysrv.New()
	srv.Register("alice-auth", profile("alice"))
	srv.Register("bob-auth", profile("bob"))
	hs := httptest.NewServer(srv)
	defer hs.Close()

	alice := newChannel(t, hs.URL, "alice-auth", nil)
	tokens := make(chan string, 1)
	alice.OnToken(func(tok string) { tokens <- tok })

	a := run(alice, &relay.Request{
		SessionID:       "alice-session",
		SharingCategory: exchange.Work,
	})

	var token string
	select {
	case token = <-tokens:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no token issued")
	}

	// Bob scans the code, then signs in.
	rec := call(t, srv, http.MethodPost, "/qr/"+token+"/scan", "bob-auth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return alice.Status() == exchange.StatusQRScanPending
	}, 5*time.Second, time.Millisecond)

	rec = call(t, srv, http.MethodPost, "/qr/"+token+"/authenticate", "bob-auth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var owner relay.PairResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&owner))
	require.Equal(t, "alice", owner.Profile.UserID)

	o := wait(t, a)
	require.NoError(t, o.err)
	require.Equal(t, exchange.MatchQRScan, o.res.MatchType)
	require.Equal(t, exchange.RoleA, o.res.YouAre)
	require.Equal(t, "bob", o.res.Profile.UserID)
	require.Equal(t, exchange.StatusQRScanMatched, alice.Status())

	// Work sharing keeps work fields and drops personal ones.
	for _, e := range o.res.Profile.ContactEntries {
		require.NotEqual(t, exchange.SectionPersonal, e.Section)
	}

	rec = call(t, srv, http.MethodPost, "/qr/"+token+"/scan", "carol-auth", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}
