// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hybrid

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/alexweingart/nektus-sub006/ble"
	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/listeners"
	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
	"github.com/alexweingart/nektus-sub006/notify"
	"github.com/alexweingart/nektus-sub006/relay"
	"github.com/alexweingart/nektus-sub006/statestore"
)

type (
	// Coordinator runs both match channels for each attempt and arbitrates
	// between them.
	Coordinator struct {
		ble    BLEChannel
		server ServerChannel
		opts   Options
		clock  wallclock.WallClock
		log    logger

		statusHandlers listeners.List[func(exchange.Status)]

		mu        sync.Mutex
		sessionID string
		status    exchange.Status
		token     string
		gen       uint64
		cancel    context.CancelCauseFunc
	}

	attempt struct {
		gen       uint64
		userID    string
		sessionID string

		// Guarded by the coordinator lock.
		bleAvailable bool

		// Set once, by the first match or leg timeout.
		settled atomic.Bool
	}

	leg int

	outcome struct {
		leg leg
		res *exchange.MatchResult
		err error
	}
)

const (
	legBLE leg = iota
	legServer
)

// New creates an idle coordinator over the two channels.
func New(bleChannel BLEChannel, server ServerChannel, opt ...Option) *Coordinator {
	c := &Coordinator{
		ble:    bleChannel,
		server: server,
		status: exchange.StatusIdle,
	}
	c.opts.Apply(opt)

	c.sessionID = c.opts.SessionID
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	c.clock = wallclock.Or(c.opts.Clock)
	c.log.Logger = log.Wrap(c.opts.Logger).WithClock(c.clock)
	return c
}

// SessionID returns the identifier of the current attempt.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status returns the coordinated status.
func (c *Coordinator) Status() exchange.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnStatusChange registers a handler called on every coordinated status
// change. It returns a function to remove the handler.
func (c *Coordinator) OnStatusChange(handler func(exchange.Status)) func() {
	return c.statusHandlers.Add(handler)
}

// Stop tears down both channels. A running Start returns
// exchange.ErrStopped.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel(exchange.ErrStopped)
	}
	c.gen++
	from := c.status
	if !from.Terminal() {
		c.status = exchange.StatusIdle
	}
	c.mu.Unlock()

	c.ble.Stop()
	c.server.Disconnect()

	if from != exchange.StatusIdle && !from.Terminal() {
		c.notify(context.Background(), from, exchange.StatusIdle)
	}
}

// Reset stops any running attempt, returns to idle and issues a fresh
// session ID. The record of the previous attempt is cleared.
func (c *Coordinator) Reset() {
	c.Stop()
	c.ble.Reset()

	c.mu.Lock()
	token := c.token
	c.token = ""
	c.sessionID = uuid.NewString()
	from := c.status
	c.status = exchange.StatusIdle
	c.mu.Unlock()

	if token != "" && c.opts.Records != nil {
		if _, err := c.opts.Records.Clear(context.Background(), token); err != nil {
			c.log.persistFailed(context.Background(), token, err)
		}
	}
	if from != exchange.StatusIdle {
		c.notify(context.Background(), from, exchange.StatusIdle)
	}
}

// Start runs one attempt: both channels start concurrently and the first
// match wins. It blocks until a match, a channel timeout, or Stop.
func (c *Coordinator) Start(
	ctx context.Context,
	req *Request,
) (*exchange.MatchResult, error) {
	if req == nil || req.UserID == "" {
		return nil, ErrNoUser
	}

	c.mu.Lock()
	switch {
	case c.cancel != nil:
		c.mu.Unlock()
		return nil, ErrBusy
	case c.status.Terminal():
		c.mu.Unlock()
		return nil, ErrEnded
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)
	c.gen++
	a := &attempt{gen: c.gen, userID: req.UserID, sessionID: c.sessionID}
	c.cancel = cancel
	c.token = ""
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	available := c.ble.Available(ctx)
	c.mu.Lock()
	a.bleAvailable = available
	c.mu.Unlock()

	// With the radio up, bump detection is held back and only released if
	// the radio leg turns out to be unavailable.
	motion := req.MotionPermissionGranted && !available
	var motionReady chan struct{}
	if req.MotionPermissionGranted && available {
		motionReady = make(chan struct{})
	}
	c.log.start(ctx, a.sessionID, available, motion)

	defer c.server.OnToken(func(token string) { c.issued(ctx, a, token) })()
	defer c.ble.OnStateChange(func(ble.State) { c.refresh(ctx, a) })()
	defer c.server.OnStatusChange(func(exchange.Status) { c.refresh(ctx, a) })()
	c.refresh(ctx, a)

	press := req.ButtonPress
	if press.IsZero() {
		press = c.clock.Now()
	}

	outcomes := make(chan outcome, 2)
	go func() {
		res, err := c.ble.Exchange(ctx, &ble.Request{
			SelfID:          req.UserID,
			Profile:         req.Profile,
			SharingCategory: req.SharingCategory,
			ButtonPress:     press,
		})
		outcomes <- outcome{legBLE, res, err}
	}()
	sreq := &relay.Request{
		SessionID:               a.sessionID,
		SharingCategory:         req.SharingCategory,
		MotionPermissionGranted: req.MotionPermissionGranted,
		MotionReady:             motionReady,
	}
	go func() {
		res, err := c.server.Exchange(ctx, sreq)
		outcomes <- outcome{legServer, res, err}
	}()

	var (
		winner  *exchange.MatchResult
		errs    [2]error
		pending = 2
	)
	for pending > 0 && !a.settled.Load() {
		o := <-outcomes
		pending--
		switch {
		case o.res != nil:
			a.settled.Store(true)
			c.stopLeg(o.leg.other())
			winner = o.res

		case errors.Is(o.err, exchange.ErrTimeout):
			errs[o.leg] = o.err
			c.log.legEnded(ctx, o.leg, o.err)
			a.settled.Store(true)
			c.stopLeg(o.leg.other())

		case errors.Is(o.err, exchange.ErrRadioUnavailable):
			errs[o.leg] = o.err
			c.log.legEnded(ctx, o.leg, o.err)
			c.mu.Lock()
			a.bleAvailable = false
			c.mu.Unlock()
			if o.leg == legBLE && motionReady != nil {
				close(motionReady)
				motionReady = nil
				c.log.motionReleased(ctx, a.sessionID)
			}
			c.refresh(ctx, a)

		default:
			errs[o.leg] = o.err
			if o.err != nil && !errors.Is(o.err, exchange.ErrStopped) {
				c.log.legEnded(ctx, o.leg, o.err)
			}
		}
	}

	// The losing leg has been stopped but may still be returning.
	if pending > 0 {
		go func() {
			for range pending {
				if o := <-outcomes; o.res != nil {
					c.log.discarded(ctx, o.leg, o.res)
				}
			}
		}()
	}

	if winner != nil {
		if !c.finish(ctx, a, exchange.MatchedStatus(winner.MatchType)) {
			return nil, exchange.ErrStopped
		}
		c.log.matched(ctx, winner)
		c.completed(ctx, a, winner)
		return winner, nil
	}

	if ctx.Err() != nil {
		c.finish(ctx, a, exchange.StatusIdle)
		return nil, context.Cause(ctx)
	}

	status, err := unmatched(errs[:]...)
	if !c.finish(ctx, a, status) {
		return nil, exchange.ErrStopped
	}
	return nil, err
}

func (c *Coordinator) stopLeg(l leg) {
	if l == legBLE {
		c.ble.Stop()
	} else {
		c.server.Disconnect()
	}
}

// Record the relay token of the attempt and persist it as waiting.
func (c *Coordinator) issued(ctx context.Context, a *attempt, token string) {
	c.mu.Lock()
	if a.gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.token = token
	c.mu.Unlock()

	c.save(ctx, &statestore.Record{
		State:     statestore.StateWaiting,
		ProfileID: a.userID,
		Token:     token,
	})
}

// Persist and publish a delivered match.
func (c *Coordinator) completed(
	ctx context.Context,
	a *attempt,
	res *exchange.MatchResult,
) {
	c.mu.Lock()
	token := c.token
	c.token = res.Token
	c.mu.Unlock()

	if token != "" && token != res.Token && c.opts.Records != nil {
		if _, err := c.opts.Records.Clear(ctx, token); err != nil {
			c.log.persistFailed(ctx, token, err)
		}
	}
	c.save(ctx, &statestore.Record{
		State:     statestore.StateCompleted,
		ProfileID: a.userID,
		Token:     res.Token,
	})

	if c.opts.Sink != nil {
		e := notify.NewEvent(a.userID, a.sessionID, res, c.clock.Now())
		if err := c.opts.Sink.Publish(ctx, e); err != nil {
			c.log.publishFailed(ctx, err)
		}
	}
}

func (c *Coordinator) save(ctx context.Context, rec *statestore.Record) {
	if c.opts.Records == nil {
		return
	}
	rec.Timestamp = c.clock.Now().UTC()
	if err := c.opts.Records.Save(ctx, rec); err != nil {
		c.log.persistFailed(ctx, rec.Token, err)
	}
}

// Re-project the status from the channels while the attempt is unsettled.
func (c *Coordinator) refresh(ctx context.Context, a *attempt) {
	bleState := c.ble.State()
	server := c.server.Status()

	c.mu.Lock()
	if a.gen != c.gen || a.settled.Load() {
		c.mu.Unlock()
		return
	}
	to := Project(a.bleAvailable, bleState, server)
	if to.Terminal() || to == c.status {
		c.mu.Unlock()
		return
	}
	from := c.status
	c.status = to
	c.mu.Unlock()

	c.notify(ctx, from, to)
}

// End the attempt with the given status. It reports false if the attempt was
// stopped first.
func (c *Coordinator) finish(
	ctx context.Context,
	a *attempt,
	to exchange.Status,
) bool {
	c.mu.Lock()
	if a.gen != c.gen {
		c.mu.Unlock()
		return false
	}
	from := c.status
	c.status = to
	c.mu.Unlock()

	if from != to {
		c.notify(ctx, from, to)
	}
	return true
}

func (c *Coordinator) notify(ctx context.Context, from, to exchange.Status) {
	c.log.status(ctx, from, to)
	listeners.Notify(&c.statusHandlers, to)
}

func (l leg) other() leg {
	return 1 - l
}

func (l leg) String() string {
	if l == legBLE {
		return "ble"
	}
	return "server"
}
