// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package statestore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/container"
	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// Memory is an in-process Store. Expired keys are trimmed on every
	// operation in expiry order.
	Memory struct {
		clock wallclock.WallClock
		log   logger

		entries map[string]*entry
		expiry  container.PriorityQueue[string, int64]
		mu      sync.Mutex
	}

	entry struct {
		val []byte
		exp time.Time
	}
)

// NewMemory creates an empty in-memory store.
func NewMemory(opt ...Option) *Memory {
	var opts Options
	opts.Apply(opt)

	return &Memory{
		clock:   wallclock.Or(opts.Clock),
		log:     logger{log.Wrap(opts.Logger)},
		entries: map[string]*entry{},
		expiry:  container.NewPriorityQueue[string, int64](),
	}
}

// Get returns the value of the given key, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validate(key, nil); err != nil {
		return nil, err
	}
	m.log.op(ctx, "GET", key)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.trim(ctx)

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(e.val), nil
}

// Set the value of the given key.
func (m *Memory) Set(
	ctx context.Context,
	key string,
	val []byte,
	opt ...SetOption,
) (bool, error) {
	var opts SetOptions
	opts.Apply(opt)
	if err := validate(key, &opts); err != nil {
		return false, err
	}
	m.log.op(ctx, "SET", key)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.trim(ctx)

	if _, ok := m.entries[key]; ok && opts.Condition == NotExists {
		return false, nil
	}

	e := &entry{val: slices.Clone(val)}
	m.entries[key] = e
	if opts.Expiry > 0 {
		e.exp = m.clock.Now().Add(opts.Expiry)
		m.expiry.Push(key, e.exp.UnixNano())
	} else {
		m.expiry.Remove(key)
	}
	return true, nil
}

// Del deletes the given key and reports whether it was present.
func (m *Memory) Del(ctx context.Context, key string) (bool, error) {
	if err := validate(key, nil); err != nil {
		return false, err
	}
	m.log.op(ctx, "DEL", key)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.trim(ctx)

	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	m.expiry.Remove(key)
	return true, nil
}

// Len returns the number of live keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trim(context.Background())
	return len(m.entries)
}

// Close discards all keys.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]*entry{}
	m.expiry = container.NewPriorityQueue[string, int64]()
	return nil
}

// Remove every key whose expiry has passed. Must be called with the lock held.
func (m *Memory) trim(ctx context.Context) {
	now := m.clock.Now().UnixNano()
	n := 0
	for {
		key, exp, ok := m.expiry.Peek()
		if !ok || exp > now {
			break
		}
		m.expiry.Remove(key)
		delete(m.entries, key)
		n++
	}
	m.log.expired(ctx, n)
}
