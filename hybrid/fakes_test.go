// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hybrid_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alexweingart/nektus-sub006/ble"
	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/listeners"
	"github.com/alexweingart/nektus-sub006/notify"
	"github.com/alexweingart/nektus-sub006/relay"
)

type result struct {
	res *exchange.MatchResult
	err error
}

// fakeBLE blocks in Exchange until a result is queued or it is stopped.
// A stuck fakeBLE ignores Stop and cancellation.
type fakeBLE struct {
	available bool
	stuck     bool
	results   chan result
	entered   chan struct{}

	stops  atomic.Int32
	resets atomic.Int32

	handlers listeners.List[func(ble.State)]

	mu    sync.Mutex
	state ble.State
	req   *ble.Request
	stop  chan struct{}
}

func newFakeBLE(available bool) *fakeBLE {
	return &fakeBLE{
		available: available,
		results:   make(chan result, 1),
		entered:   make(chan struct{}, 1),
		state:     ble.StateIdle,
	}
}

func (f *fakeBLE) Available(context.Context) bool { return f.available }

func (f *fakeBLE) Exchange(
	ctx context.Context,
	req *ble.Request,
) (*exchange.MatchResult, error) {
	stop := make(chan struct{})
	f.mu.Lock()
	f.req = req
	f.stop = stop
	f.mu.Unlock()

	f.set(ble.StateScanning)
	select {
	case f.entered <- struct{}{}:
	default:
	}
	if f.stuck {
		stop, ctx = nil, context.Background()
	}
	select {
	case r := <-f.results:
		if r.err != nil {
			f.set(ble.StateFailed)
		} else {
			f.set(ble.StateCompleted)
		}
		return r.res, r.err
	case <-stop:
		return nil, exchange.ErrStopped
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (f *fakeBLE) State() ble.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBLE) OnStateChange(handler func(ble.State)) func() {
	return f.handlers.Add(handler)
}

func (f *fakeBLE) Stop() {
	f.stops.Add(1)
	f.mu.Lock()
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
	if !f.state.Terminal() {
		f.state = ble.StateIdle
	}
	f.mu.Unlock()
}

func (f *fakeBLE) Reset() {
	f.resets.Add(1)
	f.mu.Lock()
	f.state = ble.StateIdle
	f.mu.Unlock()
}

func (f *fakeBLE) set(s ble.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	listeners.Notify(&f.handlers, s)
}

// fakeServer issues its token, then blocks in Exchange until a result is
// queued or it is disconnected.
type fakeServer struct {
	token   string
	results chan result
	entered chan struct{}

	disconnects atomic.Int32

	statusHandlers listeners.List[func(exchange.Status)]
	tokenHandlers  listeners.List[func(string)]

	mu     sync.Mutex
	status exchange.Status
	req    *relay.Request
	stop   chan struct{}
}

func newFakeServer(token string) *fakeServer {
	return &fakeServer{
		token:   token,
		results: make(chan result, 1),
		entered: make(chan struct{}, 1),
		status:  exchange.StatusIdle,
	}
}

func (f *fakeServer) Exchange(
	ctx context.Context,
	req *relay.Request,
) (*exchange.MatchResult, error) {
	stop := make(chan struct{})
	f.mu.Lock()
	f.req = req
	f.stop = stop
	f.mu.Unlock()

	if f.token != "" {
		listeners.Notify(&f.tokenHandlers, f.token)
	}
	f.set(exchange.StatusWaitingForBump)
	select {
	case f.entered <- struct{}{}:
	default:
	}

	select {
	case r := <-f.results:
		if r.err != nil {
			f.set(exchange.StatusError)
		} else {
			f.set(exchange.MatchedStatus(r.res.MatchType))
		}
		return r.res, r.err
	case <-stop:
		return nil, exchange.ErrStopped
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (f *fakeServer) Status() exchange.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeServer) request() *relay.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.req
}

func (f *fakeServer) OnStatusChange(handler func(exchange.Status)) func() {
	return f.statusHandlers.Add(handler)
}

func (f *fakeServer) OnToken(handler func(string)) func() {
	return f.tokenHandlers.Add(handler)
}

func (f *fakeServer) Disconnect() {
	f.disconnects.Add(1)
	f.mu.Lock()
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
	if !f.status.Terminal() {
		f.status = exchange.StatusIdle
	}
	f.mu.Unlock()
}

func (f *fakeServer) set(s exchange.Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
	listeners.Notify(&f.statusHandlers, s)
}

type fakeSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *fakeSink) Publish(_ context.Context, e notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) get() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Event(nil), s.events...)
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []exchange.Status
}

func (r *statusRecorder) record(s exchange.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) last() exchange.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}
