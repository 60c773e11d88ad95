// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ble

import (
	"sync"
	"time"
)

// DefaultDebounce is the window within which repeated discoveries of the
// same device are ignored.
const DefaultDebounce = time.Second

// DiscoveredPeer is a peer that passed discovery filtering.
type DiscoveredPeer struct {
	DeviceID      string
	Advertisement Advertisement
	DiscoveredAt  time.Time
}

// PeerTracker debounces discoveries per device id. A discovery inside the
// window of the last accepted one is dropped and does not move the window.
type PeerTracker struct {
	window time.Duration

	mu    sync.Mutex
	peers map[string]DiscoveredPeer
}

// NewPeerTracker creates a tracker with the given debounce window.
func NewPeerTracker(window time.Duration) *PeerTracker {
	return &PeerTracker{window: window, peers: map[string]DiscoveredPeer{}}
}

// Observe records the peer and reports whether it was accepted.
func (t *PeerTracker) Observe(p DiscoveredPeer) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.peers[p.DeviceID]; ok &&
		p.DiscoveredAt.Sub(last.DiscoveredAt) < t.window {
		return false
	}
	t.peers[p.DeviceID] = p
	return true
}

// Peer returns the last accepted discovery of the device.
func (t *PeerTracker) Peer(deviceID string) (DiscoveredPeer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[deviceID]
	return p, ok
}

// Len returns the number of distinct devices accepted so far.
func (t *PeerTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// Reset forgets every peer.
func (t *PeerTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.peers)
}
