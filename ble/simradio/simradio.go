// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package simradio is an in-process radio medium. Radios attached to the
// same Air see each other's advertisements and can open GATT links to each
// other, with faults injected per radio.
package simradio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/ble"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Air is the shared medium.
	Air struct {
		// ScanInterval is how often an active scan reports every advertiser.
		ScanInterval time.Duration
		Clock        wallclock.WallClock

		mu     sync.Mutex
		radios map[string]*Radio
	}

	// Faults configures failures a radio injects. Counters are consumed one
	// per affected operation.
	Faults struct {
		Absent         bool
		DenyPermission bool
		NeverReady     bool
		NoAdvertise    bool
		NoPeripheral   bool

		ScanStartErrors int
		ScanErrors      int
		ConnectErrors   int
		WriteErrors     int
		ReadErrors      int

		// DropOnWrite disconnects the link instead of delivering a write.
		DropOnWrite int
	}

	// Radio is one device's radio. It implements ble.Radio and
	// ble.Peripheral.
	Radio struct {
		air *Air
		id  string

		mu       sync.Mutex
		faults   Faults
		adv      []byte
		served   []byte
		onWrite  func(string, []byte)
		onRead   func(string)
		connects int
		received [][]byte
	}

	link struct {
		from, to *Radio
		dropped  chan struct{}
		drop     func()
	}
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNotServing     = errors.New("profile characteristic not served")
	ErrNoPeripheral   = errors.New("peripheral role not supported")
	ErrInjected       = errors.New("injected radio fault")
	ErrDisconnected   = errors.New("link disconnected")
)

var (
	_ ble.Radio      = (*Radio)(nil)
	_ ble.Peripheral = (*Radio)(nil)
)

// NewAir creates an empty medium.
func NewAir() *Air {
	return &Air{
		ScanInterval: 50 * time.Millisecond,
		radios:       map[string]*Radio{},
	}
}

// Radio returns the radio of the given device, attaching it on first use.
func (a *Air) Radio(deviceID string) *Radio {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r, ok := a.radios[deviceID]; ok {
		return r
	}
	r := &Radio{air: a, id: deviceID}
	a.radios[deviceID] = r
	return r
}

func (a *Air) clock() wallclock.WallClock {
	return wallclock.Or(a.Clock)
}

func (a *Air) lookup(deviceID string) (*Radio, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.radios[deviceID]
	return r, ok
}

func (a *Air) advertisers() []ble.Discovery {
	a.mu.Lock()
	radios := make([]*Radio, 0, len(a.radios))
	for _, r := range a.radios {
		radios = append(radios, r)
	}
	a.mu.Unlock()

	var out []ble.Discovery
	for _, r := range radios {
		r.mu.Lock()
		if r.adv != nil {
			out = append(out, ble.Discovery{DeviceID: r.id, Payload: r.adv})
		}
		r.mu.Unlock()
	}
	return out
}

// ID returns the device id.
func (r *Radio) ID() string {
	return r.id
}

// SetFaults replaces the radio's injected faults.
func (r *Radio) SetFaults(f Faults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = f
}

// Connects returns how many connections this radio opened.
func (r *Radio) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Received returns the payloads peers wrote to this radio.
func (r *Radio) Received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.received...)
}

// Advertising reports whether the radio currently broadcasts.
func (r *Radio) Advertising() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adv != nil
}

// Consume one unit of a fault counter, reporting whether it was set.
func (r *Radio) take(counter *int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if *counter > 0 {
		*counter--
		return true
	}
	return false
}

// Available implements ble.Radio.
func (r *Radio) Available(context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.faults.Absent
}

// RequestPermission implements ble.Radio.
func (r *Radio) RequestPermission(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.faults.Absent && !r.faults.DenyPermission, nil
}

// WaitReady implements ble.Radio.
func (r *Radio) WaitReady(ctx context.Context) error {
	r.mu.Lock()
	never := r.faults.NeverReady
	r.mu.Unlock()

	if never {
		<-ctx.Done()
		return context.Cause(ctx)
	}
	return nil
}

// Advertise implements ble.Radio.
func (r *Radio) Advertise(_ context.Context, payload []byte) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.faults.NoAdvertise {
		return nil, ble.ErrAdvertiseUnsupported
	}
	r.adv = payload
	return sync.OnceFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.adv = nil
	}), nil
}

// Serve implements ble.Peripheral.
func (r *Radio) Serve(
	_ context.Context,
	payload []byte,
	onWrite func(string, []byte),
	onRead func(string),
) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.faults.NoPeripheral {
		return nil, ErrNoPeripheral
	}
	r.served, r.onWrite, r.onRead = payload, onWrite, onRead
	return sync.OnceFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.served, r.onWrite, r.onRead = nil, nil, nil
	}), nil
}

// Scan implements ble.Radio.
func (r *Radio) Scan(
	ctx context.Context,
	onDiscover func(ble.Discovery),
	onError func(error),
) (func(), error) {
	if r.take(&r.faults.ScanStartErrors) {
		return nil, ErrInjected
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		clock := r.air.clock()
		for {
			if r.take(&r.faults.ScanErrors) {
				onError(ErrInjected)
			} else {
				for _, d := range r.air.advertisers() {
					onDiscover(d)
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-clock.After(r.air.ScanInterval):
			}
		}
	}()
	return cancel, nil
}

// Connect implements ble.Radio.
func (r *Radio) Connect(_ context.Context, deviceID string) (ble.Link, error) {
	if r.take(&r.faults.ConnectErrors) {
		return nil, ErrInjected
	}

	peer, ok := r.air.lookup(deviceID)
	if !ok {
		return nil, ErrDeviceNotFound
	}
	peer.mu.Lock()
	visible := peer.adv != nil
	peer.mu.Unlock()
	if !visible {
		return nil, ErrDeviceNotFound
	}

	r.mu.Lock()
	r.connects++
	r.mu.Unlock()

	dropped := make(chan struct{})
	return &link{
		from:    r,
		to:      peer,
		dropped: dropped,
		drop:    sync.OnceFunc(func() { close(dropped) }),
	}, nil
}

func (l *link) DeviceID() string {
	return l.to.id
}

func (l *link) Disconnected() <-chan struct{} {
	return l.dropped
}

func (l *link) connected() bool {
	select {
	case <-l.dropped:
		return false
	default:
		return true
	}
}

func (l *link) WriteCharacteristic(
	_ context.Context,
	service, characteristic string,
	data []byte,
) error {
	if !l.connected() {
		return ErrDisconnected
	}
	if l.from.take(&l.from.faults.WriteErrors) {
		return ErrInjected
	}
	if l.from.take(&l.from.faults.DropOnWrite) {
		l.drop()
		return ErrDisconnected
	}
	if service != ble.ServiceUUID ||
		characteristic != ble.ProfileCharacteristicUUID {
		return ErrNotServing
	}

	l.to.mu.Lock()
	onWrite := l.to.onWrite
	if onWrite != nil {
		l.to.received = append(l.to.received, data)
	}
	l.to.mu.Unlock()
	if onWrite == nil {
		return ErrNotServing
	}
	onWrite(l.from.id, data)
	return nil
}

func (l *link) ReadCharacteristic(
	_ context.Context,
	service, characteristic string,
) ([]byte, error) {
	if !l.connected() {
		return nil, ErrDisconnected
	}
	if l.from.take(&l.from.faults.ReadErrors) {
		return nil, ErrInjected
	}
	if service != ble.ServiceUUID ||
		characteristic != ble.ProfileCharacteristicUUID {
		return nil, ErrNotServing
	}

	l.to.mu.Lock()
	served, onRead := l.to.served, l.to.onRead
	l.to.mu.Unlock()
	if served == nil {
		return nil, ErrNotServing
	}
	if onRead != nil {
		onRead(l.from.id)
	}
	return served, nil
}

func (l *link) Close() error {
	l.drop()
	return nil
}
