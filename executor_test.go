// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package hwtimer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutineExecutorRunsConcurrently(t *testing.T) {
	var exec GoroutineExecutor
	var wg sync.WaitGroup
	var n atomic.Int32
	wg.Add(10)
	for i := 0; i < 10; i++ {
		err := exec.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.EqualValues(t, 10, n.Load())
}

func TestPoolExecutorRunsAllJobs(t *testing.T) {
	p := NewPoolExecutor(4, 16)
	var n atomic.Int32
	var wg sync.WaitGroup
	wg.Add(50)
	for i := 0; i < 50; i++ {
		err := p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	p.Close()
	assert.EqualValues(t, 50, n.Load())
}

func TestPoolExecutorRejectsAfterClose(t *testing.T) {
	p := NewPoolExecutor(1, 1)
	p.Close()
	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrExecutorClosed)
}

func TestPoolExecutorCloseIsIdempotent(t *testing.T) {
	p := NewPoolExecutor(1, 1)
	p.Close()
	assert.NotPanics(t, func() { p.Close() })
}

func TestSubmitFireRecoversPanic(t *testing.T) {
	logger := &countingLogger{}
	e := &Timeout{task: TaskFunc(func(*Timeout) { panic("boom") })}
	done := make(chan struct{})
	exec := GoroutineExecutor{}
	go func() {
		submitFire(exec, e, logger)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitFire did not return")
	}
	// the panic happens inside the submitted goroutine, give it a moment
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, logger.errCount.Load(), int32(1))
}

type countingLogger struct {
	errCount atomic.Int32
}

func (countingLogger) DBGon() bool                         { return false }
func (countingLogger) WARNon() bool                        { return false }
func (countingLogger) ERRon() bool                         { return true }
func (countingLogger) DBG(string, ...interface{})          {}
func (countingLogger) INFO(string, ...interface{})         {}
func (countingLogger) WARN(string, ...interface{})         {}
func (l *countingLogger) ERR(string, ...interface{})       { l.errCount.Add(1) }
func (countingLogger) BUG(string, ...interface{})          {}
