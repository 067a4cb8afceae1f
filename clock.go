// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package hwtimer

import (
	"sync/atomic"
	"time"

	"github.com/intuitivelabs/timestamp"
)

// Clock is the monotonic millisecond source consumed by the wheel. It
// must be non-decreasing for the life of the process; wall-clock jumps
// must never be visible through it.
type Clock interface {
	NowMs() int64
}

// SystemClock is the default Clock, backed by
// github.com/intuitivelabs/timestamp's monotonic timestamp type.
type SystemClock struct {
	start timestamp.TS
}

// NewSystemClock captures the reference timestamp against which every
// subsequent NowMs() is measured.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: timestamp.Now()}
}

// NowMs implements Clock.
func (c *SystemClock) NowMs() int64 {
	return int64(timestamp.Now().Sub(c.start) / time.Millisecond)
}

// ManualClock is a Clock a test can advance by hand, for deterministic
// timer tests.
type ManualClock struct {
	ms atomic.Int64
}

// NewManualClock creates a ManualClock starting at 0ms.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// NowMs implements Clock.
func (c *ManualClock) NowMs() int64 {
	return c.ms.Load()
}

// Advance moves the clock forward by d, which must be non-negative.
func (c *ManualClock) Advance(d time.Duration) {
	c.ms.Add(int64(d / time.Millisecond))
}
