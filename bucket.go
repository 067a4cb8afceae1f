// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package hwtimer

// bucket is a doubly linked list of entries that all hash to the same
// wheel slot. Emptiness is head == nil; there is no size counter. All
// operations are single-threaded: only the tick worker ever touches a
// bucket.
type bucket struct {
	head, tail *Timeout
}

func (b *bucket) isEmpty() bool {
	return b.head == nil
}

// add appends e at the tail.
func (b *bucket) add(e *Timeout) {
	e.bucket = b
	e.prev = b.tail
	e.next = nil
	if b.tail != nil {
		b.tail.next = e
	} else {
		b.head = e
	}
	b.tail = e
}

// remove unlinks e, fixes head/tail, clears prev/next/bucket and
// decrements the owning wheel's pending counter exactly once.
func (b *bucket) remove(e *Timeout) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		b.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		b.tail = e.prev
	}
	e.prev = nil
	e.next = nil
	e.bucket = nil
	if e.wheel != nil {
		e.wheel.pending.Add(-1)
	}
}

// expireTimeouts walks the bucket once, applying the placement/round
// rule from the wheel's tick loop:
//   - an entry with remainingRounds > 0 and not cancelled has its round
//     count decremented and is left in place;
//   - a cancelled entry is unlinked (remove() handles the accounting);
//   - an entry with remainingRounds == 0 is unlinked and, if its
//     deadline has actually been reached, transitioned to EXPIRED and
//     handed to the executor. If the INIT->EXPIRED CAS fails the entry
//     was cancelled concurrently and nothing further happens.
//
// An entry observed with remainingRounds == 0 but deadline beyond
// tickDeadline is a placement bug and is reported as an
// InvariantViolationError without otherwise disturbing the bucket.
func (b *bucket) expireTimeouts(tickDeadline int64, exec Executor, logger Logger) error {
	e := b.head
	for e != nil {
		next := e.next

		if e.loadState() == stateCancelled {
			b.remove(e)
			submitCancel(exec, e, logger)
			e = next
			continue
		}

		if e.remainingRounds > 0 {
			e.remainingRounds--
			e = next
			continue
		}

		if e.deadline > tickDeadline {
			if e.wheel != nil {
				e.wheel.stats.violations.Add(1)
			}
			return &InvariantViolationError{Tick: tickDeadline, Deadline: e.deadline}
		}

		b.remove(e)
		if e.casState(stateInit, stateExpired) {
			submitFire(exec, e, logger)
		}
		e = next
	}
	return nil
}

// drainInto pops every element off the bucket and appends the ones that
// are neither expired nor cancelled to dst, for publication as
// "unprocessed" on Stop.
func (b *bucket) drainInto(dst *[]*Timeout) {
	for b.head != nil {
		e := b.head
		b.remove(e)
		switch e.loadState() {
		case stateExpired, stateCancelled:
			// already accounted for; nothing to publish.
		default:
			*dst = append(*dst, e)
		}
	}
}
