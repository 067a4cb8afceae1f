// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package hwtimer

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Task is run on the configured Executor when a Timeout fires.
type Task interface {
	Run(t *Timeout)
}

// Canceller is an optional extension of Task: if the task registered on
// a Timeout implements it, Cancel is invoked once the cancelled entry
// has actually been unlinked from its bucket, so the task can release
// resources it reserved at registration time.
type Canceller interface {
	Cancel(t *Timeout)
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(t *Timeout)

// Run implements Task.
func (f TaskFunc) Run(t *Timeout) { f(t) }

type entryState int32

const (
	stateInit entryState = iota
	stateCancelled
	stateExpired
)

func (s entryState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateCancelled:
		return "cancelled"
	case stateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Timeout is both the handle returned to a registrant and the
// wheel-owned bookkeeping record for one scheduled task: a single
// allocation, avoiding a second allocation on the high-throughput
// registration path.
//
// Only the tick worker mutates prev/next/bucket and remainingRounds
// (invariant 6 of the wheel's data model); producers touch only state,
// intakeLink/cancelLink (via the intake/cancellation queues) and the
// wheel's atomic pending counter. The registrant only ever calls the
// exported methods below, which never touch the link fields.
//
// intakeLink and cancelLink are deliberately separate fields: an entry
// can be sitting on the intake queue (between registration and the
// worker's next intake drain) at the exact moment it is cancelled and
// pushed onto the cancel queue, and the two queues must not corrupt each
// other's chain by sharing one link.
type Timeout struct {
	deadline        int64 // ms since wheel start
	remainingRounds int64 // set on placement, decremented per sweep
	state           int32 // atomic entryState

	prev, next *Timeout
	bucket     *bucket

	intakeLink atomic.Pointer[Timeout] // intrusive link for the intake queue
	cancelLink atomic.Pointer[Timeout] // intrusive link for the cancel queue

	task  Task
	wheel *Wheel
}

func (t *Timeout) loadState() entryState {
	return entryState(atomic.LoadInt32(&t.state))
}

func (t *Timeout) casState(from, to entryState) bool {
	return atomic.CompareAndSwapInt32(&t.state, int32(from), int32(to))
}

// Cancel atomically flips the entry from INIT to CANCELLED. Returns false
// if the entry already fired or was already cancelled. On success the
// entry is enqueued on the owning wheel's cancellation queue for unlink
// on the next drain; Cancel does not touch the pending counter directly.
func (t *Timeout) Cancel() bool {
	if !t.casState(stateInit, stateCancelled) {
		return false
	}
	if t.wheel != nil {
		t.wheel.cancelQueue.Push(t)
	}
	return true
}

// IsExpired reports whether the entry has fired, i.e. its task has been
// handed to the executor (the task itself may still be running or queued).
func (t *Timeout) IsExpired() bool {
	return t.loadState() == stateExpired
}

// IsCancelled reports whether Cancel has successfully been called.
func (t *Timeout) IsCancelled() bool {
	return t.loadState() == stateCancelled
}

// Deadline returns the time remaining until the entry's deadline,
// computed from the owning wheel's clock. It is advisory/diagnostic
// only: the wheel's granularity and scheduling jitter both apply.
func (t *Timeout) Deadline() time.Duration {
	if t.wheel == nil {
		return 0
	}
	now := t.wheel.elapsedMs()
	remaining := t.deadline - now
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining) * time.Millisecond
}

func (t *Timeout) String() string {
	return fmt.Sprintf("Timeout{state: %s, deadline: %dms, rounds: %d}",
		t.loadState(), t.deadline, t.remainingRounds)
}
