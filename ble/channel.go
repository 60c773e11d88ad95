// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/listeners"
	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
	"github.com/google/uuid"
)

type (
	// Channel runs radio exchanges. A channel completes at most once; after a
	// match it refuses further exchanges.
	Channel struct {
		radio Radio
		opts  Options
		clock wallclock.WallClock
		log   logger

		stateHandlers listeners.List[func(State)]

		mu     sync.Mutex
		state  State
		gen    uint64
		cancel context.CancelCauseFunc
	}

	// Request describes the local side of an exchange.
	Request struct {
		SelfID          string
		Profile         exchange.Profile
		SharingCategory exchange.SharingCategory

		// ButtonPress is when the user requested the exchange. If zero, the
		// time the exchange starts is used.
		ButtonPress time.Time
	}
)

// Delay before retrying a scan that failed to start.
const scanRetryDelay = time.Second

// NewChannel creates an idle channel on the given radio.
func NewChannel(radio Radio, opt ...Option) *Channel {
	c := &Channel{radio: radio, state: StateIdle}
	c.opts.Apply(opt)

	if c.opts.ReadyTimeout <= 0 {
		c.opts.ReadyTimeout = DefaultReadyTimeout
	}
	if c.opts.ExchangeTimeout <= 0 {
		c.opts.ExchangeTimeout = DefaultExchangeTimeout
	}
	if c.opts.Debounce <= 0 {
		c.opts.Debounce = DefaultDebounce
	}
	if c.opts.Filter == nil {
		c.opts.Filter = exchange.SectionFilter{}
	}

	c.clock = wallclock.Or(c.opts.Clock)
	c.log.Logger = log.Wrap(c.opts.Logger).WithClock(c.clock)
	return c
}

// Available reports whether radio hardware is present.
func (c *Channel) Available(ctx context.Context) bool {
	return c.radio.Available(ctx)
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a handler called on every state transition. It
// returns a function to remove the handler.
func (c *Channel) OnStateChange(handler func(State)) func() {
	return c.stateHandlers.Add(handler)
}

// Stop ends the running exchange, which then returns exchange.ErrStopped.
// Unless the channel already reached a terminal state it returns to idle.
// Stop may be called in any state and any number of times.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel(exchange.ErrStopped)
		c.cancel = nil
	}
	c.gen++
	from := c.state
	if !from.Terminal() {
		c.state = StateIdle
	}
	c.mu.Unlock()

	if from != StateIdle && !from.Terminal() {
		c.notify(context.Background(), from, StateIdle)
	}
}

// Reset stops the channel and returns it to idle from any state, including
// completed, so that a new exchange can run.
func (c *Channel) Reset() {
	c.Stop()

	c.mu.Lock()
	from := c.state
	c.state = StateIdle
	c.mu.Unlock()

	if from != StateIdle {
		c.notify(context.Background(), from, StateIdle)
	}
}

// Exchange starts the radio and blocks until a peer's profile has been
// exchanged, the exchange timeout passes, the radio turns out to be
// unavailable, or the channel is stopped.
func (c *Channel) Exchange(
	ctx context.Context,
	req *Request,
) (*exchange.MatchResult, error) {
	c.mu.Lock()
	switch {
	case c.state == StateCompleted:
		c.mu.Unlock()
		return nil, ErrCompleted
	case c.cancel != nil:
		c.mu.Unlock()
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()

	res, err := c.run(ctx, gen, req)

	switch {
	case err == nil:
		if !c.finish(ctx, gen, StateCompleted) {
			return nil, exchange.ErrStopped
		}
		c.log.matched(ctx, res.Token, res.YouAre == exchange.RoleA)
		return res, nil

	case errors.Is(err, exchange.ErrStopped),
		errors.Is(err, context.Canceled):
		c.finish(ctx, gen, StateIdle)
		return nil, err

	default:
		if !c.finish(ctx, gen, StateFailed) {
			return nil, exchange.ErrStopped
		}
		return nil, err
	}
}

func (c *Channel) run(
	ctx context.Context,
	gen uint64,
	req *Request,
) (*exchange.MatchResult, error) {
	c.transition(ctx, gen, StateStarting)

	granted, err := c.radio.RequestPermission(ctx)
	switch {
	case err != nil:
		return nil, &RadioError{Reason: "permission request failed", Err: err}
	case !granted:
		return nil, &RadioError{Reason: "permission denied"}
	}

	readyCtx, cancel := c.clock.WithTimeoutCause(
		ctx,
		c.opts.ReadyTimeout,
		errNotReady,
	)
	err = c.radio.WaitReady(readyCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &RadioError{Reason: "not ready", Err: err}
	}

	ctx, cancel = c.clock.WithTimeoutCause(
		ctx,
		c.opts.ExchangeTimeout,
		exchange.ErrTimeout,
	)
	defer cancel()

	pressed := req.ButtonPress
	if pressed.IsZero() {
		pressed = c.clock.Now()
	}
	self := NewAdvertisement(req.SelfID, pressed, req.SharingCategory)
	adv, err := self.Encode()
	if err != nil {
		return nil, err
	}
	filtered := c.opts.Filter.Filter(req.Profile, req.SharingCategory)
	payload, err := EncodeProfile(&filtered)
	if err != nil {
		return nil, err
	}

	// Serve before advertising so that a peer never connects to a device
	// that is visible but not yet serving.
	served := make(chan *exchange.Profile, 1)
	if stopServing := c.serve(ctx, payload, served); stopServing != nil {
		defer stopServing()
	}

	stopAdvertising, err := c.radio.Advertise(ctx, adv)
	switch {
	case errors.Is(err, ErrAdvertiseUnsupported):
		c.log.advertiseUnsupported(ctx)
	case err != nil:
		c.log.Warn(ctx, "ble advertise failed", err)
	default:
		defer stopAdvertising()
	}

	return c.scanLoop(ctx, gen, &self, payload, served)
}

// Serve the local payload when the radio can act as a peripheral, so that an
// initiating peer can complete the exchange with this device. The exchange
// completes once the central that wrote its profile has read ours.
func (c *Channel) serve(
	ctx context.Context,
	payload []byte,
	served chan<- *exchange.Profile,
) func() {
	p, ok := c.radio.(Peripheral)
	if !ok {
		c.log.noPeripheral(ctx)
		return nil
	}

	var (
		mu      sync.Mutex
		written = map[string]*exchange.Profile{}
	)
	onWrite := func(central string, data []byte) {
		peer, err := DecodeProfile(data)
		if err != nil {
			c.log.Warn(ctx, "ble peer wrote an invalid profile", err)
			return
		}
		mu.Lock()
		written[central] = peer
		mu.Unlock()
	}
	onRead := func(central string) {
		mu.Lock()
		peer := written[central]
		mu.Unlock()
		if peer == nil {
			return
		}
		select {
		case served <- peer:
		default:
		}
	}

	stop, err := p.Serve(ctx, payload, onWrite, onRead)
	if err != nil {
		c.log.noPeripheral(ctx)
		return nil
	}
	return stop
}

func (c *Channel) scanLoop(
	ctx context.Context,
	gen uint64,
	self *Advertisement,
	payload []byte,
	served <-chan *exchange.Profile,
) (*exchange.MatchResult, error) {
	tracker := NewPeerTracker(c.opts.Debounce)
	candidates := make(chan DiscoveredPeer, 8)

	onDiscover := func(d Discovery) {
		peer, ok := c.admit(ctx, gen, tracker, self, d)
		if !ok {
			return
		}
		// Dropped candidates are rediscovered after the debounce window.
		select {
		case candidates <- peer:
		default:
		}
	}
	onError := func(err error) { c.log.scanError(ctx, err) }

	for {
		stopScan, err := c.radio.Scan(ctx, onDiscover, onError)
		if err != nil {
			c.log.scanError(ctx, err)
			select {
			case <-ctx.Done():
				return nil, context.Cause(ctx)
			case <-c.clock.After(scanRetryDelay):
				continue
			}
		}
		c.transition(ctx, gen, StateScanning)

		select {
		case <-ctx.Done():
			stopScan()
			return nil, context.Cause(ctx)

		case peer := <-served:
			stopScan()
			return c.result(peer, exchange.RoleB), nil

		case candidate := <-candidates:
			stopScan()
			c.transition(ctx, gen, StateDiscovered)

			peer, err := c.swap(ctx, gen, candidate.DeviceID, payload)
			if err == nil {
				return c.result(peer, exchange.RoleA), nil
			}
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			c.log.recovering(ctx, candidate.DeviceID, err)
		}
	}
}

// Filter a discovery and decide whether this device should connect to it.
func (c *Channel) admit(
	ctx context.Context,
	gen uint64,
	tracker *PeerTracker,
	self *Advertisement,
	d Discovery,
) (DiscoveredPeer, bool) {
	adv, err := DecodeAdvertisement(d.Payload)
	if err != nil {
		c.log.ignored(ctx, d.DeviceID, "malformed advertisement")
		return DiscoveredPeer{}, false
	}
	if adv.UserID == self.UserID {
		return DiscoveredPeer{}, false
	}
	if adv.SharingCategory != self.SharingCategory {
		c.log.ignored(ctx, d.DeviceID, "sharing category mismatch")
		return DiscoveredPeer{}, false
	}

	peer := DiscoveredPeer{
		DeviceID:      d.DeviceID,
		Advertisement: adv,
		DiscoveredAt:  c.clock.Now(),
	}
	if !tracker.Observe(peer) {
		return DiscoveredPeer{}, false
	}

	initiator := IsInitiator(*self, adv)
	c.log.discovered(ctx, &peer, initiator)
	c.advance(ctx, gen, StateScanning, StateDiscovered)
	return peer, initiator
}

// Connect to the peer, write the local profile and read the peer's. Losing
// the connection at any point fails the swap.
func (c *Channel) swap(
	ctx context.Context,
	gen uint64,
	deviceID string,
	payload []byte,
) (*exchange.Profile, error) {
	c.transition(ctx, gen, StateConnecting)

	link, err := c.radio.Connect(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer link.Close()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-link.Disconnected():
			cancel(errDisconnected)
		case <-ctx.Done():
		}
	}()

	c.transition(ctx, gen, StateExchanging)

	err = link.WriteCharacteristic(
		ctx,
		ServiceUUID,
		ProfileCharacteristicUUID,
		payload,
	)
	if err != nil {
		return nil, fmt.Errorf("write profile: %w", linkErr(ctx, err))
	}

	data, err := link.ReadCharacteristic(
		ctx,
		ServiceUUID,
		ProfileCharacteristicUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", linkErr(ctx, err))
	}

	return DecodeProfile(data)
}

func linkErr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errDisconnected) {
		return errDisconnected
	}
	return err
}

func (c *Channel) result(
	peer *exchange.Profile,
	role exchange.Role,
) *exchange.MatchResult {
	return &exchange.MatchResult{
		Token:     uuid.NewString(),
		Profile:   peer,
		YouAre:    role,
		MatchType: exchange.MatchBLE,
	}
}

// Move to the given state if the attempt is still current.
func (c *Channel) transition(ctx context.Context, gen uint64, to State) {
	c.mu.Lock()
	if gen != c.gen || c.state == to {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = to
	c.mu.Unlock()

	c.notify(ctx, from, to)
}

// Transition only out of the given state.
func (c *Channel) advance(ctx context.Context, gen uint64, from, to State) {
	c.mu.Lock()
	if gen != c.gen || c.state != from {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()

	c.notify(ctx, from, to)
}

// End the attempt in the given state. It reports false if the attempt was
// stopped first.
func (c *Channel) finish(ctx context.Context, gen uint64, to State) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.cancel = nil
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from != to {
		c.notify(ctx, from, to)
	}
	return true
}

func (c *Channel) notify(ctx context.Context, from, to State) {
	c.log.state(ctx, from, to)
	listeners.Notify(&c.stateHandlers, to)
}
