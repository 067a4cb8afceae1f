// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package hwtimer

import (
	"github.com/intuitivelabs/slog"
)

// Logger is the diagnostics sink consumed by a Wheel. The *on() gates let
// call sites skip building log arguments on the hot path when the level
// is disabled.
type Logger interface {
	DBGon() bool
	WARNon() bool
	ERRon() bool
	DBG(format string, args ...interface{})
	INFO(format string, args ...interface{})
	WARN(format string, args ...interface{})
	ERR(format string, args ...interface{})
	// BUG records a condition that should never happen; it is not
	// gated by level.
	BUG(format string, args ...interface{})
}

// SlogLogger adapts github.com/intuitivelabs/slog to the Logger
// interface.
type SlogLogger struct {
	L slog.Log
}

// NewSlogLogger builds a SlogLogger at the given level.
func NewSlogLogger(level slog.LogLevel) *SlogLogger {
	l := &SlogLogger{}
	slog.SetLevel(&l.L, level)
	return l
}

func (l *SlogLogger) DBGon() bool  { return l.L.DBGon() }
func (l *SlogLogger) WARNon() bool { return l.L.WARNon() }
func (l *SlogLogger) ERRon() bool  { return l.L.ERRon() }

func (l *SlogLogger) DBG(format string, args ...interface{})  { l.L.DBG(format, args...) }
func (l *SlogLogger) INFO(format string, args ...interface{}) { l.L.INFO(format, args...) }
func (l *SlogLogger) WARN(format string, args ...interface{}) { l.L.WARN(format, args...) }
func (l *SlogLogger) ERR(format string, args ...interface{})  { l.L.ERR(format, args...) }
func (l *SlogLogger) BUG(format string, args ...interface{})  { l.L.BUG(format, args...) }

// NopLogger discards everything. It is the configuration default.
type NopLogger struct{}

func (NopLogger) DBGon() bool                          { return false }
func (NopLogger) WARNon() bool                         { return false }
func (NopLogger) ERRon() bool                          { return false }
func (NopLogger) DBG(format string, args ...interface{})  {}
func (NopLogger) INFO(format string, args ...interface{}) {}
func (NopLogger) WARN(format string, args ...interface{}) {}
func (NopLogger) ERR(format string, args ...interface{})  {}
func (NopLogger) BUG(format string, args ...interface{})  {}
