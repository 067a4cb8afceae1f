// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package hwtimer

import "time"

// run is the tick worker's goroutine entry point: it drives the tick
// loop to completion and publishes whatever remains unprocessed on
// doneCh for a waiting Stop() call.
func (w *Wheel) run() {
	w.doneCh <- w.tickLoop()
}

// tickLoop implements the tick worker loop from the wheel's component
// design: sleep to the next tick boundary, drain cancellations, drain a
// bounded batch of intake, expire the current slot, advance, repeat
// until shutdown. It never runs concurrently with itself: run is only
// launched by ensureStarted, whose INIT->STARTED CAS succeeds exactly
// once, and run is the only caller.
func (w *Wheel) tickLoop() []*Timeout {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		targetDeadline := w.tickDurationMs * (w.currentTick + 1)

		for {
			now := w.elapsedMs()
			if now >= targetDeadline {
				break
			}
			wait := time.Duration(targetDeadline-now) * time.Millisecond
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
			timer.Reset(wait)
			select {
			case <-timer.C:
				// recompute remaining and re-check; tolerates spurious
				// early wakeups.
			case <-w.stopCh:
				timer.Stop()
				return w.drainAllOnStop()
			}
		}

		w.drainCancelQueue()
		w.drainIntakeQueue()

		slot := w.currentTick & w.mask
		if err := w.buckets[slot].expireTimeouts(targetDeadline, w.executor, w.logger); err != nil {
			w.logger.BUG("hwtimer: %s\n", err)
			return w.drainAllOnStop()
		}

		w.currentTick++

		select {
		case <-w.stopCh:
			return w.drainAllOnStop()
		default:
		}
	}
}

// drainCancelQueue unlinks every entry the cancellation queue has
// accumulated since the last drain. An entry whose bucket is already
// nil was unlinked elsewhere in the meantime (e.g. its own bucket's
// expiry sweep observed CANCELLED first) and is skipped, so the pending
// counter is decremented exactly once per entry.
func (w *Wheel) drainCancelQueue() {
	for e := w.cancelQueue.DrainAll(); e != nil; {
		next := e.cancelLink.Load()
		e.cancelLink.Store(nil)
		if e.bucket != nil {
			b := e.bucket
			b.remove(e)
			submitCancel(w.executor, e, w.logger)
		}
		e = next
	}
}

// drainIntakeQueue places up to the configured intake batch of freshly
// registered entries into their buckets, carrying any excess over to
// the next tick so a producer flood cannot starve the expiry pass.
func (w *Wheel) drainIntakeQueue() {
	head := w.intakeCarry
	w.intakeCarry = nil
	if head == nil {
		head = w.intakeQueue.DrainAll()
	} else {
		tail := head
		for tail.intakeLink.Load() != nil {
			tail = tail.intakeLink.Load()
		}
		tail.intakeLink.Store(w.intakeQueue.DrainAll())
	}

	budget := w.intakeBatch
	e := head
	for e != nil {
		if budget == 0 && w.intakeBatch > 0 {
			break
		}
		next := e.intakeLink.Load()
		e.intakeLink.Store(nil)
		w.placeEntry(e)
		e = next
		budget--
	}
	w.intakeCarry = e
}

// placeEntry implements the wheel's placement rule. An entry already
// cancelled before ever reaching a bucket is dropped with no unlink
// needed, but the pending counter is still decremented since it leaves
// the wheel here.
func (w *Wheel) placeEntry(e *Timeout) {
	if e.loadState() == stateCancelled {
		w.pending.Add(-1)
		submitCancel(w.executor, e, w.logger)
		return
	}

	calculatedTick := e.deadline / w.tickDurationMs
	remainingRounds := (calculatedTick - w.currentTick) / w.wheelLen
	if remainingRounds < 0 {
		remainingRounds = 0
	}
	e.remainingRounds = remainingRounds

	targetTick := calculatedTick
	if w.currentTick > targetTick {
		targetTick = w.currentTick
	}
	slot := targetTick & w.mask
	w.buckets[slot].add(e)
}

// drainAllOnStop implements step 8 of the tick loop: drain every
// bucket, then the intake queue, then the cancellation queue, returning
// everything still pending as "unprocessed".
func (w *Wheel) drainAllOnStop() []*Timeout {
	var unprocessed []*Timeout

	for i := range w.buckets {
		w.buckets[i].drainInto(&unprocessed)
	}

	for e := w.intakeCarry; e != nil; {
		next := e.intakeLink.Load()
		e.intakeLink.Store(nil)
		w.publishOrDrop(e, &unprocessed)
		e = next
	}
	w.intakeCarry = nil
	for e := w.intakeQueue.DrainAll(); e != nil; {
		next := e.intakeLink.Load()
		e.intakeLink.Store(nil)
		w.publishOrDrop(e, &unprocessed)
		e = next
	}

	for e := w.cancelQueue.DrainAll(); e != nil; {
		next := e.cancelLink.Load()
		e.cancelLink.Store(nil)
		if e.bucket != nil {
			b := e.bucket
			b.remove(e)
		}
		e = next
	}

	return unprocessed
}

// publishOrDrop accounts for an intake-queue entry observed at shutdown:
// a cancelled one never reached a bucket and is dropped (its pending
// slot is freed here), everything else is published as unprocessed.
func (w *Wheel) publishOrDrop(e *Timeout, unprocessed *[]*Timeout) {
	w.pending.Add(-1)
	if e.loadState() == stateCancelled {
		submitCancel(w.executor, e, w.logger)
		return
	}
	*unprocessed = append(*unprocessed, e)
}
