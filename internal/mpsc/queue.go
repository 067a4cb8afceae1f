// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package mpsc implements a lock-free, intrusive, multi-producer
// single-consumer queue. Elements carry their own "next" link (no extra
// allocation per push), the same way the wheel's entries carry their own
// prev/next bucket links.
//
// Push is lock-free: a producer never blocks and never takes a lock, only
// a CAS retry loop that repeats while other producers win the race. The consumer side (DrainAll) is meant to be
// called from a single goroutine; calling it concurrently from more than
// one goroutine is undefined.
package mpsc

import "sync/atomic"

// Queue is a Treiber-stack-based MPSC queue: pushes CAS onto a LIFO head,
// and a drain swaps the whole stack out in one atomic Swap and reverses it in
// place so callers observe FIFO (insertion) order within a single drain.
// Reversal is O(n) with no extra allocation since it only rewrites the
// intrusive next pointers already present on each element.
//
// link selects the element's intrusive next field. It must always return
// the same field for a given element, and that field must belong to this
// Queue alone: an element threaded onto two Queues at once needs a
// distinct field (and thus a distinct link func) per Queue, or the two
// queues will corrupt each other's chains.
type Queue[T any] struct {
	head atomic.Pointer[T]
	link func(e *T) *atomic.Pointer[T]
}

// New builds a Queue whose elements are linked through the field link
// selects.
func New[T any](link func(e *T) *atomic.Pointer[T]) *Queue[T] {
	return &Queue[T]{link: link}
}

// Push enqueues e. Safe for concurrent use by any number of producers.
func (q *Queue[T]) Push(e *T) {
	for {
		old := q.head.Load()
		q.link(e).Store(old)
		if q.head.CompareAndSwap(old, e) {
			return
		}
	}
}

// DrainAll atomically detaches every element currently queued and returns
// the head of a singly linked list (threaded through the same link field)
// in FIFO order. Returns nil if the queue was empty. Must only be called
// by the single consumer goroutine.
func (q *Queue[T]) DrainAll() *T {
	lifo := q.head.Swap(nil)
	var fifo *T
	for lifo != nil {
		next := q.link(lifo).Load()
		q.link(lifo).Store(fifo)
		fifo = lifo
		lifo = next
	}
	return fifo
}
