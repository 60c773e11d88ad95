// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/listeners"
	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
	"github.com/alexweingart/nektus-sub006/motion"
)

type (
	// BumpDetector is the motion source of the bump correlation path.
	BumpDetector interface {
		StartSession()
		EndSession()
		Detect(ctx context.Context) motion.Detection
	}

	// Channel runs relay exchanges. Its statuses are the relay subset of
	// exchange.Status: idle, waiting-for-bump, processing, qr-scan-pending,
	// matched, qr-scan-matched, timeout and error.
	Channel struct {
		api      API
		detector BumpDetector
		opts     ChannelOptions
		clock    wallclock.WallClock
		log      logger

		statusHandlers listeners.List[func(exchange.Status)]
		tokenHandlers  listeners.List[func(string)]

		mu       sync.Mutex
		status   exchange.Status
		token    string
		deadline time.Time
		gen      uint64
		cancel   context.CancelCauseFunc
	}

	// Request describes the local side of a relay exchange.
	Request struct {
		SessionID       string
		SharingCategory exchange.SharingCategory

		// MotionPermissionGranted enables bump correlation. Scan correlation
		// is always active.
		MotionPermissionGranted bool

		// MotionReady, if non-nil, holds bump correlation back until it is
		// closed. Exchanges that end first never start it.
		MotionReady <-chan struct{}
	}

	pendingMatch struct {
		token     string
		youAre    exchange.Role
		matchType exchange.MatchType
	}

	pollResult struct {
		res *StatusResponse
		err error
	}
)

// ErrBusy is returned when an exchange is requested while another one is
// still running on the same channel.
var ErrBusy = errors.New("relay exchange already running")

// Wait before listening for the next bump after a negative detection.
const detectRetryDelay = 100 * time.Millisecond

// NewChannel creates an idle channel. The detector may be nil, in which case
// only scan correlation is available.
func NewChannel(api API, detector BumpDetector, opt ...ChannelOption) *Channel {
	c := &Channel{api: api, detector: detector, status: exchange.StatusIdle}
	c.opts.Apply(opt)

	if c.opts.PollInterval <= 0 {
		c.opts.PollInterval = DefaultPollInterval
	}
	if c.opts.BaseTimeout <= 0 {
		c.opts.BaseTimeout = DefaultBaseTimeout
	}
	if c.opts.PendingAuthTimeout <= 0 {
		c.opts.PendingAuthTimeout = DefaultPendingAuthTimeout
	}

	c.clock = wallclock.Or(c.opts.Clock)
	c.log.Logger = log.Wrap(c.opts.Logger).WithClock(c.clock)
	return c
}

// Status returns the current status.
func (c *Channel) Status() exchange.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Token returns the token of the current or last session, if any.
func (c *Channel) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Deadline returns when the running session times out, or the zero time if
// no session is waiting for a match.
func (c *Channel) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// OnStatusChange registers a handler called on every status change. It
// returns a function to remove the handler.
func (c *Channel) OnStatusChange(handler func(exchange.Status)) func() {
	return c.statusHandlers.Add(handler)
}

// OnToken registers a handler called with each newly issued session token,
// for rendering the scannable code. It returns a function to remove the
// handler.
func (c *Channel) OnToken(handler func(string)) func() {
	return c.tokenHandlers.Add(handler)
}

// Disconnect ends the running exchange, which then returns
// exchange.ErrStopped. Polling and bump detection stop immediately.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel(exchange.ErrStopped)
		c.cancel = nil
	}
	c.gen++
	c.deadline = time.Time{}
	from := c.status
	if !from.Terminal() {
		c.status = exchange.StatusIdle
	}
	c.mu.Unlock()

	if from != exchange.StatusIdle && !from.Terminal() {
		c.notify(context.Background(), from, exchange.StatusIdle)
	}
}

// Exchange opens a relay session and blocks until it is matched by bump or
// scan, times out, fails unrecoverably, or is disconnected.
func (c *Channel) Exchange(
	ctx context.Context,
	req *Request,
) (*exchange.MatchResult, error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.token = ""
	c.mu.Unlock()

	res, status, err := c.run(ctx, gen, req)
	if !c.finish(ctx, gen, status) {
		return nil, exchange.ErrStopped
	}
	return res, err
}

func (c *Channel) run(
	ctx context.Context,
	gen uint64,
	req *Request,
) (*exchange.MatchResult, exchange.Status, error) {
	init, err := c.api.Initiate(ctx, &InitiateRequest{
		SessionID:       req.SessionID,
		SharingCategory: req.SharingCategory,
	})
	if err != nil {
		status, err := c.failure(ctx, err)
		return nil, status, err
	}
	c.issue(ctx, gen, init.Token)
	c.transition(ctx, gen, exchange.StatusWaitingForBump)

	timer := c.clock.NewTimer(c.opts.BaseTimeout)
	defer timer.Stop()
	c.setDeadline(gen, c.clock.Now().Add(c.opts.BaseTimeout))

	loops, stopLoops := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stopLoops()

	polls := make(chan pollResult)
	matches := make(chan *pendingMatch, 1)
	failures := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.poll(loops, req.SessionID, polls)
	}()

	if req.MotionPermissionGranted && c.detector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if req.MotionReady != nil {
				select {
				case <-loops.Done():
					return
				case <-req.MotionReady:
				}
			}
			c.bump(loops, gen, req, matches, failures)
		}()
	}

	var (
		m        *pendingMatch
		extended bool
	)
	for m == nil {
		select {
		case <-ctx.Done():
			return nil, exchange.StatusIdle, context.Cause(ctx)

		case <-timer.C():
			return nil, exchange.StatusTimeout, exchange.ErrTimeout

		case err := <-failures:
			return nil, exchange.StatusError, err

		case m = <-matches:

		case p := <-polls:
			switch {
			case p.err != nil && fatal(p.err):
				return nil, exchange.StatusError, p.err
			case p.err != nil:
				c.log.pollFailed(ctx, p.err)
			case p.res.HasMatch && p.res.Match != nil:
				m = &pendingMatch{
					token:     p.res.Match.Token,
					youAre:    p.res.Match.YouAre,
					matchType: exchange.MatchBump,
				}
				if p.res.ScanStatus == ScanCompleted {
					m.matchType = exchange.MatchQRScan
				}
			case p.res.ScanStatus == ScanPendingAuth && !extended:
				// Replace the deadline rather than extend it, so a slow
				// sign-in on the scanning device gets a full window.
				extended = true
				timer.Reset(c.opts.PendingAuthTimeout)
				deadline := c.clock.Now().Add(c.opts.PendingAuthTimeout)
				c.setDeadline(gen, deadline)
				c.log.deadline(ctx, deadline)
				c.transition(ctx, gen, exchange.StatusQRScanPending)
			}
		}
	}

	timer.Stop()
	stopLoops()
	wg.Wait()
	c.log.matched(ctx, m)

	pair, err := c.api.Pair(ctx, m.token)
	if err != nil {
		status, err := c.failure(ctx, err)
		return nil, status, err
	}

	return &exchange.MatchResult{
		Token:     m.token,
		Profile:   pair.Profile,
		YouAre:    m.youAre,
		MatchType: m.matchType,
	}, exchange.MatchedStatus(m.matchType), nil
}

// Resolve the outcome of a failed request. If the exchange was stopped in
// the meantime, the request's own error is irrelevant.
func (c *Channel) failure(
	ctx context.Context,
	err error,
) (exchange.Status, error) {
	if ctx.Err() != nil {
		return exchange.StatusIdle, context.Cause(ctx)
	}
	c.log.Err(ctx, err)
	return exchange.StatusError, err
}

// Poll the match status once per interval until the context ends.
func (c *Channel) poll(
	ctx context.Context,
	sessionID string,
	results chan<- pollResult,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.opts.PollInterval):
		}

		res, err := c.api.Status(ctx, sessionID)
		if ctx.Err() != nil {
			return
		}

		select {
		case results <- pollResult{res, err}:
		case <-ctx.Done():
			return
		}
	}
}

// Detect bumps and report each one until matched or the context ends.
func (c *Channel) bump(
	ctx context.Context,
	gen uint64,
	req *Request,
	matches chan<- *pendingMatch,
	failures chan<- error,
) {
	c.detector.StartSession()
	defer c.detector.EndSession()

	for hitNumber := 1; ; {
		det := c.detector.Detect(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case det.Unavailable:
			c.log.motionUnavailable(ctx)
			return
		case !det.HasMotion:
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(detectRetryDelay):
			}
			continue
		}

		c.transition(ctx, gen, exchange.StatusProcessing)

		hit := &HitReport{
			Timestamp:       det.Timestamp.UnixMilli(),
			Magnitude:       det.Magnitude,
			Session:         req.SessionID,
			SharingCategory: req.SharingCategory,
			SentAt:          c.clock.Now().UnixMilli(),
			HitNumber:       hitNumber,
			Vector:          motion.HashAcceleration(det.Acceleration),
		}
		hitNumber++
		c.log.hit(ctx, hit)

		res, err := c.api.Hit(ctx, hit)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil && fatal(err):
			failures <- err
			return
		case err != nil:
			c.log.hitFailed(ctx, hit.HitNumber, err)
		case res.Matched && res.Token != "":
			matches <- &pendingMatch{
				token:     res.Token,
				youAre:    res.YouAre,
				matchType: exchange.MatchBump,
			}
			return
		}

		c.transition(ctx, gen, exchange.StatusWaitingForBump)
	}
}

func (c *Channel) issue(ctx context.Context, gen uint64, token string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.token = token
	c.mu.Unlock()

	c.log.token(ctx, token)
	listeners.Notify(&c.tokenHandlers, token)
}

func (c *Channel) setDeadline(gen uint64, deadline time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.deadline = deadline
	}
}

// Move to the given status if the exchange is still current.
func (c *Channel) transition(
	ctx context.Context,
	gen uint64,
	to exchange.Status,
) {
	c.mu.Lock()
	if gen != c.gen || c.status == to {
		c.mu.Unlock()
		return
	}
	from := c.status
	c.status = to
	c.mu.Unlock()

	c.notify(ctx, from, to)
}

// End the exchange with the given status. It reports false if the exchange
// was disconnected first.
func (c *Channel) finish(
	ctx context.Context,
	gen uint64,
	to exchange.Status,
) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.cancel = nil
	c.deadline = time.Time{}
	from := c.status
	c.status = to
	c.mu.Unlock()

	if from != to {
		c.notify(ctx, from, to)
	}
	return true
}

func (c *Channel) notify(ctx context.Context, from, to exchange.Status) {
	c.log.status(ctx, from, to)
	listeners.Notify(&c.statusHandlers, to)
}
