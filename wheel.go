// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package hwtimer implements a hashed wheel timer: an approximate,
// high-throughput scheduler for a large number of delayed one-shot
// tasks, optimised for high timer counts (100k+) with a relatively
// lower precision requirement than an exact-time scheduler.
//
// A single background goroutine ("the tick worker") owns the wheel's
// bucket array and advances the tick; any number of producer goroutines
// may register and cancel timeouts concurrently, coordinating with the
// worker only through atomics and the two lock-free queues in
// internal/mpsc.
package hwtimer

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intuitivelabs/hwtimer/internal/mpsc"
)

// DefaultIntakeBatch bounds how many freshly registered entries the tick
// worker places per tick, so a producer flood cannot starve the expiry
// pass.
const DefaultIntakeBatch = 100000

const (
	defaultTickDuration  = 100 * time.Millisecond
	defaultTicksPerWheel = 512
	minTickDuration      = time.Millisecond
	maxTicksPerWheel     = 1 << 30
)

const maxLiveWheelsWarnThreshold = 64

var liveWheelCount atomic.Int64
var liveWheelWarnOnce sync.Once

type workerState int32

const (
	workerInit workerState = iota
	workerStarted
	workerShutdown
)

// Wheel is a hashed wheel timer. The zero value is not usable; build one
// with New.
type Wheel struct {
	buckets []bucket
	mask    int64

	tickDurationMs int64
	wheelLen       int64

	clock   Clock
	startMs int64

	currentTick int64 // worker-private, advanced only inside tickLoop
	intakeCarry *Timeout

	pending    atomic.Int64
	maxPending int64

	state workerState32

	intakeQueue *mpsc.Queue[Timeout]
	cancelQueue *mpsc.Queue[Timeout]
	intakeBatch int

	executor Executor
	logger   Logger

	stopCh   chan struct{}
	doneCh   chan []*Timeout
	stopFlag atomic.Bool

	stats wheelStats
}

// wheelStats holds the atomic counters behind Stats.
type wheelStats struct {
	fired      atomic.Int64
	cancelled  atomic.Int64
	violations atomic.Int64
}

// Stats is a point-in-time snapshot of a Wheel's lifetime counters.
type Stats struct {
	Fired      int64
	Cancelled  int64
	Violations int64
}

// Stats returns the current diagnostic counters. It is advisory, like
// PendingTimeouts: the values may already be stale by the time the
// caller observes them.
func (w *Wheel) Stats() Stats {
	return Stats{
		Fired:      w.stats.fired.Load(),
		Cancelled:  w.stats.cancelled.Load(),
		Violations: w.stats.violations.Load(),
	}
}

// workerState32 gives the atomic int32 backing the worker lifecycle a
// readable name at call sites.
type workerState32 struct {
	v atomic.Int32
}

func (s *workerState32) load() workerState { return workerState(s.v.Load()) }
func (s *workerState32) cas(from, to workerState) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}

// Option configures a Wheel at construction time.
type Option func(*config)

type config struct {
	tickDuration  time.Duration
	ticksPerWheel int
	maxPending    int64
	executor      Executor
	logger        Logger
	clock         Clock
	intakeBatch   int
}

// WithTickDuration sets the milliseconds between tick boundaries. Values
// below 1ms are clamped upward and a warning is logged.
func WithTickDuration(d time.Duration) Option {
	return func(c *config) { c.tickDuration = d }
}

// WithTicksPerWheel sets the requested wheel size; it is rounded up to
// the next power of two and must lie in [1, 2^30].
func WithTicksPerWheel(n int) Option {
	return func(c *config) { c.ticksPerWheel = n }
}

// WithMaxPending bounds the number of simultaneously pending timeouts. 0
// or negative means unbounded.
func WithMaxPending(n int64) Option {
	return func(c *config) { c.maxPending = n }
}

// WithExecutor overrides the default GoroutineExecutor.
func WithExecutor(e Executor) Option {
	return func(c *config) { c.executor = e }
}

// WithLogger overrides the default NopLogger.
func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock overrides the default SystemClock; primarily useful for
// deterministic tests with a ManualClock.
func WithClock(cl Clock) Option {
	return func(c *config) { c.clock = cl }
}

// WithIntakeBatch overrides DefaultIntakeBatch. A value <= 0 means
// unbounded (drain the entire intake queue every tick).
func WithIntakeBatch(n int) Option {
	return func(c *config) { c.intakeBatch = n }
}

func nextPowerOfTwo(n int64) int64 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// New builds and returns a Wheel. The worker goroutine is not started
// until the first successful NewTimeout call.
func New(opts ...Option) (*Wheel, error) {
	c := config{
		tickDuration:  defaultTickDuration,
		ticksPerWheel: defaultTicksPerWheel,
		maxPending:    0,
		executor:      GoroutineExecutor{},
		logger:        NopLogger{},
		intakeBatch:   DefaultIntakeBatch,
	}
	for _, opt := range opts {
		opt(&c)
	}

	if c.ticksPerWheel <= 0 || int64(c.ticksPerWheel) > maxTicksPerWheel {
		return nil, ErrInvalidArgument
	}
	wheelLen := nextPowerOfTwo(int64(c.ticksPerWheel))
	if wheelLen > maxTicksPerWheel {
		return nil, ErrInvalidArgument
	}

	tickDuration := c.tickDuration
	if tickDuration < minTickDuration {
		c.logger.WARN("hwtimer: tick duration %s below minimum %s,"+
			" clamping\n", tickDuration, minTickDuration)
		tickDuration = minTickDuration
	}
	tickMs := tickDuration.Milliseconds()
	if tickMs <= 0 {
		return nil, ErrInvalidArgument
	}
	if tickMs >= math.MaxInt64/wheelLen {
		return nil, ErrInvalidArgument
	}

	clk := c.clock
	if clk == nil {
		clk = NewSystemClock()
	}

	w := &Wheel{
		buckets:        make([]bucket, wheelLen),
		mask:           wheelLen - 1,
		tickDurationMs: tickMs,
		wheelLen:       wheelLen,
		clock:          clk,
		startMs:        clk.NowMs(),
		maxPending:     c.maxPending,
		executor:       c.executor,
		logger:         c.logger,
		intakeBatch:    c.intakeBatch,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan []*Timeout, 1),
	}
	w.intakeQueue = mpsc.New(func(t *Timeout) *atomic.Pointer[Timeout] { return &t.intakeLink })
	w.cancelQueue = mpsc.New(func(t *Timeout) *atomic.Pointer[Timeout] { return &t.cancelLink })

	n := liveWheelCount.Add(1)
	if n > maxLiveWheelsWarnThreshold {
		liveWheelWarnOnce.Do(func() {
			c.logger.WARN("hwtimer: more than %d live Wheel instances;"+
				" consider sharing one\n", maxLiveWheelsWarnThreshold)
		})
	}

	return w, nil
}

// elapsedMs returns milliseconds since the wheel's construction, per the
// configured Clock.
func (w *Wheel) elapsedMs() int64 {
	return w.clock.NowMs() - w.startMs
}

func addClampOverflow(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// Len returns the wheel's bucket count (ticks per wheel, rounded up to
// the next power of two).
func (w *Wheel) Len() int { return int(w.wheelLen) }

// PendingTimeouts returns the current value of the atomic pending
// counter. It is advisory: by the time the caller observes it, it may
// already be stale.
func (w *Wheel) PendingTimeouts() int64 { return w.pending.Load() }

// ensureStarted lazily launches the tick worker goroutine, serialized by
// a CAS on the worker state word so exactly one caller wins the race.
func (w *Wheel) ensureStarted() {
	if w.state.cas(workerInit, workerStarted) {
		go w.run()
	}
}

// NewTimeout registers task to run after delay. See NewTimeoutInto for
// the zero-extra-allocation variant.
func (w *Wheel) NewTimeout(task Task, delay time.Duration) (*Timeout, error) {
	t := &Timeout{}
	if err := w.NewTimeoutInto(t, task, delay); err != nil {
		return nil, err
	}
	return t, nil
}

// NewTimeoutInto initialises t (which must be a fresh, zero-valued or
// previously-fired/cancelled Timeout) and registers it, avoiding the
// allocation NewTimeout performs: embed a Timeout in your own struct
// and call NewTimeoutInto on it to skip the extra allocation on the hot
// registration path.
func (w *Wheel) NewTimeoutInto(t *Timeout, task Task, delay time.Duration) error {
	if task == nil {
		return ErrInvalidArgument
	}
	if w.state.load() == workerShutdown {
		return ErrTimerStopped
	}

	n := w.pending.Add(1)
	if w.maxPending > 0 && n > w.maxPending {
		w.pending.Add(-1)
		return ErrCapacityExceeded
	}

	w.ensureStarted()

	delayMs := delay.Milliseconds()
	if delayMs < 0 {
		delayMs = 0
	}
	deadline := addClampOverflow(w.elapsedMs(), delayMs)

	// Assign fields individually rather than through a struct literal
	// copy: Timeout carries atomic fields (state, intakeLink, cancelLink)
	// and a literal assignment would copy them, which go vet flags even
	// though it is safe here (t is not yet visible to any other
	// goroutine).
	t.prev = nil
	t.next = nil
	t.bucket = nil
	t.intakeLink.Store(nil)
	t.cancelLink.Store(nil)
	t.deadline = deadline
	t.remainingRounds = 0
	atomic.StoreInt32(&t.state, int32(stateInit))
	t.task = task
	t.wheel = w

	w.intakeQueue.Push(t)
	return nil
}

// Stop shuts the wheel down: it is idempotent (a second call, or a call
// on a never-started wheel, returns an empty slice) and blocks until the
// tick worker has fully drained and published its unprocessed entries.
// Every returned Timeout is left in the CANCELLED state, so a later
// Cancel() on it returns false. Calling Stop from inside a firing task
// is undefined behavior.
func (w *Wheel) Stop() []*Timeout {
	if !w.stopFlag.CompareAndSwap(false, true) {
		return nil
	}
	liveWheelCount.Add(-1)

	for {
		switch w.state.load() {
		case workerInit:
			if w.state.cas(workerInit, workerShutdown) {
				return nil
			}
			// lost the race with a concurrent NewTimeout starting the
			// worker; retry against the new state.
		case workerStarted:
			if w.state.cas(workerStarted, workerShutdown) {
				close(w.stopCh)
				unprocessed := <-w.doneCh
				for _, t := range unprocessed {
					atomic.StoreInt32(&t.state, int32(stateCancelled))
				}
				return unprocessed
			}
		case workerShutdown:
			return nil
		}
	}
}
