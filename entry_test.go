// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package hwtimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutCancelOnce(t *testing.T) {
	w, err := New(WithClock(NewManualClock()))
	assert.NoError(t, err)
	to, err := w.NewTimeout(TaskFunc(func(*Timeout) {}), time.Second)
	assert.NoError(t, err)

	assert.True(t, to.Cancel())
	assert.False(t, to.Cancel())
	assert.True(t, to.IsCancelled())
	assert.False(t, to.IsExpired())
}

func TestTimeoutStateStringer(t *testing.T) {
	assert.Equal(t, "init", stateInit.String())
	assert.Equal(t, "cancelled", stateCancelled.String())
	assert.Equal(t, "expired", stateExpired.String())
	assert.Equal(t, "unknown", entryState(99).String())
}

func TestTimeoutDeadlineWithoutWheel(t *testing.T) {
	to := &Timeout{}
	assert.Equal(t, time.Duration(0), to.Deadline())
}

func TestTaskFuncAdaptsPlainFunction(t *testing.T) {
	called := false
	var task Task = TaskFunc(func(t *Timeout) { called = true })
	task.Run(nil)
	assert.True(t, called)
}
