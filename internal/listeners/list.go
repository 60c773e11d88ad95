// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package listeners

import (
	"iter"
	"sync"
)

type node[T any] struct {
	value T
	prev  *node[T]
	next  *node[T]
}

// List is a concurrency-safe list of listeners in registration order. Each
// registration returns its own removal handle, which is safe to call more than
// once.
type List[T any] struct {
	mu    sync.RWMutex
	first *node[T]
	last  *node[T]
}

// Add registers a listener and returns the function that removes it.
func (l *List[T]) Add(value T) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := &node[T]{value: value}
	if l.last == nil {
		l.first = n
	} else {
		l.last.next = n
	}
	n.prev = l.last
	l.last = n

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if n == nil {
			return
		}

		if n.prev == nil {
			l.first = n.next
		} else {
			n.prev.next = n.next
		}

		if n.next == nil {
			l.last = n.prev
		} else {
			n.next.prev = n.prev
		}

		n = nil
	}
}

// All iterates over a snapshot of the registered listeners, so listeners may
// add or remove registrations while being notified.
func (l *List[T]) All() iter.Seq[T] {
	l.mu.RLock()
	var snapshot []T
	for curr := l.first; curr != nil; curr = curr.next {
		snapshot = append(snapshot, curr.value)
	}
	l.mu.RUnlock()

	return func(yield func(T) bool) {
		for _, v := range snapshot {
			if !yield(v) {
				return
			}
		}
	}
}

// Notify calls every registered listener with the given value.
func Notify[T any](l *List[func(T)], value T) {
	for f := range l.All() {
		f(value)
	}
}
