// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/ble"
	"github.com/alexweingart/nektus-sub006/ble/simradio"
	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/hybrid"
	"github.com/alexweingart/nektus-sub006/motion"
	"github.com/alexweingart/nektus-sub006/relay"
	"github.com/alexweingart/nektus-sub006/relay/relaysrv"
	"github.com/alexweingart/nektus-sub006/statestore"
	"github.com/spf13/cobra"
)

const (
	modeBLE  = "ble"
	modeBump = "bump"
)

type simulation struct {
	*env

	mode     string
	category exchange.SharingCategory
	gap      time.Duration

	air     *simradio.Air
	start   time.Time
	baseURL string
	records *statestore.Records
	sink    hybrid.EventSink
}

func newSimulateCmd(e *env) *cobra.Command {
	var category string
	s := &simulation{env: e}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an exchange between two simulated phones",
		Long: "Run an exchange between two simulated phones sharing an " +
			"in-process radio medium and relay. In ble mode both radios " +
			"work; in bump mode the radios are absent and the phones bump.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.mode != modeBLE && s.mode != modeBump {
				return fmt.Errorf("unknown mode %q", s.mode)
			}
			c, err := exchange.ParseSharingCategory(category)
			if err != nil {
				return err
			}
			s.category = c
			return s.run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&s.mode, "mode", modeBLE, "match path to exercise: ble|bump")
	cmd.Flags().StringVar(&category, "category", "personal", "sharing category: personal|work")
	cmd.Flags().DurationVar(&s.gap, "gap", time.Second, "delay between the two button presses")
	return cmd
}

func (s *simulation) run(ctx context.Context, out io.Writer) error {
	store, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	s.records = statestore.NewRecords(store,
		statestore.WithTTL(s.cfg.Store.TTL.Std()),
		statestore.WithLogger(s.log),
	)

	sink, err := s.openSink(ctx)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
		s.sink = sink
	}

	stopRelay, err := s.startRelay()
	if err != nil {
		return err
	}
	defer stopRelay()

	s.air = simradio.NewAir()
	s.start = time.Now()
	users := []string{"alice-0001", "bob-00002"}

	var wg sync.WaitGroup
	results := make([]error, len(users))
	lines := make([]string, len(users))
	for i, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lines[i], results[i] = s.phone(ctx, user, s.start.Add(time.Duration(i)*s.gap))
		}()
	}
	wg.Wait()

	for _, line := range lines {
		if line != "" {
			_, _ = fmt.Fprintln(out, line)
		}
	}
	return errors.Join(results...)
}

// Serve the reference relay on a loopback port, registering both phones.
func (s *simulation) startRelay() (func(), error) {
	srv := relaysrv.New(
		relaysrv.WithWindow(s.cfg.Relay.MatchWindow.Std()),
		relaysrv.WithLogger(s.log),
	)
	srv.Register("alice-0001-auth", contact("alice-0001"))
	srv.Register("bob-00002-auth", contact("bob-00002"))

	h, err := s.relayHandler(srv)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(s.cfg.Relay.BaseURL)
	base.Scheme = "http"
	base.Host = ln.Addr().String()
	s.baseURL = base.String()

	hs := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = hs.Serve(ln) }()
	return func() { _ = hs.Close() }, nil
}

func (s *simulation) phone(
	ctx context.Context,
	user string,
	pressed time.Time,
) (string, error) {
	radio := s.air.Radio("dev-" + user)
	if s.mode == modeBump {
		radio.SetFaults(simradio.Faults{Absent: true})
	}

	client, err := relay.NewClient(s.baseURL,
		relay.WithTokenProvider(relay.StaticToken(user+"-auth")),
		relay.WithLogger(s.log),
	)
	if err != nil {
		return "", err
	}

	var detector relay.BumpDetector
	if s.mode == modeBump {
		// Both phones feel the same bump.
		trace := motion.BumpTrace(s.start, motion.Vector{X: 1.2, Y: 0.4, Z: -0.3})
		d := motion.New(
			motion.NewReplaySensor(trace),
			motion.WithSampleInterval(s.cfg.Motion.SampleInterval()),
			motion.WithLogger(s.log),
		)
		defer d.Close()
		detector = d
	}

	opts := []hybrid.Option{
		hybrid.WithRecords(s.records),
		hybrid.WithLogger(s.log),
	}
	if s.sink != nil {
		opts = append(opts, hybrid.WithSink(s.sink))
	}
	coord := hybrid.New(
		ble.NewChannel(radio,
			ble.WithReadyTimeout(s.cfg.BLE.ReadyTimeout.Std()),
			ble.WithExchangeTimeout(s.cfg.BLE.ExchangeTimeout.Std()),
			ble.WithDebounce(s.cfg.BLE.Debounce.Std()),
			ble.WithLogger(s.log),
		),
		relay.NewChannel(client, detector,
			relay.WithPollInterval(s.cfg.Relay.PollInterval.Std()),
			relay.WithBaseTimeout(s.cfg.Relay.BaseTimeout.Std()),
			relay.WithPendingAuthTimeout(s.cfg.Relay.PendingAuthTimeout.Std()),
			relay.WithLogger(s.log),
		),
		opts...,
	)
	defer coord.Stop()

	res, err := coord.Start(ctx, &hybrid.Request{
		UserID:                  user,
		Profile:                 contact(user),
		SharingCategory:         s.category,
		MotionPermissionGranted: s.mode == modeBump,
		ButtonPress:             pressed,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w (status %s)", user, err, coord.Status())
	}
	return fmt.Sprintf(
		"%s\t%s\tmatched %s via %s as %s (token %s)",
		user, coord.Status(), res.Profile.UserID, res.MatchType, res.YouAre, res.Token,
	), nil
}

func contact(user string) exchange.Profile {
	return exchange.Profile{
		UserID: user,
		ContactEntries: []exchange.ContactEntry{
			{FieldType: "name", Value: user, Section: exchange.SectionUniversal, IsVisible: true},
			{FieldType: "phone", Value: "555-0100", Section: exchange.SectionPersonal, IsVisible: true},
			{FieldType: "email", Value: user + "@example.com", Section: exchange.SectionWork, IsVisible: true},
		},
	}
}
