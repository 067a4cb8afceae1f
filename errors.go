// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package hwtimer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for a nil task or an out-of-range
	// configuration value (ticks per wheel, tick duration).
	ErrInvalidArgument = errors.New("hwtimer: invalid argument")
	// ErrCapacityExceeded is returned when a registration would push the
	// pending count above the configured max.
	ErrCapacityExceeded = errors.New("hwtimer: max pending timeouts exceeded")
	// ErrTimerStopped is returned by NewTimeout once Stop has moved the
	// wheel to its shutdown state (whether or not a worker was started).
	ErrTimerStopped = errors.New("hwtimer: timer already stopped")
	// ErrExecutorClosed is returned by PoolExecutor.Submit after Close.
	ErrExecutorClosed = errors.New("hwtimer: executor is closed")
)

// InvariantViolationError is returned by bucket.expireTimeouts when an
// entry reaches remainingRounds == 0 with a deadline still beyond the
// current tick's deadline: a placement bug, fatal to the tick loop.
type InvariantViolationError struct {
	Tick     int64
	Deadline int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("hwtimer: invariant violation: entry deadline %d"+
		" exceeds tick deadline %d with remainingRounds == 0", e.Deadline, e.Tick)
}
