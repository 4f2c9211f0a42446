/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * archivemixer
 * This file is part of archivemixer.
 *
 * archivemixer is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * archivemixer is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 */

// Package controlloop drains the archive mixer's merged output at a fixed
// cadence and hands each frame to a sink (the muxer). It reproduces the
// should_try_cycle / quiet_cycles double-gate from ichabod_main: the loop
// keeps going as long as there's something to pop, or until interrupted,
// and gives up for good only after a long enough run of empty polls.
package controlloop

import (
	"sync/atomic"
	"time"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

// Source is the subset of the archive mixer the control loop drains.
type Source interface {
	HasNext() bool
	Next() (*mediatypes.VideoFrame, *mediatypes.OutputAudioFrame, mediatypes.Kind, bool)
}

// Config tunes the loop's cadence and idle-shutdown threshold.
type Config struct {
	// PollInterval is how long the loop sleeps between cycles that find
	// nothing to pop. 10ms gives the 100Hz cadence the spec calls for.
	PollInterval time.Duration
	// QuietCycleLimit is how many consecutive empty cycles the loop
	// tolerates before giving up, even without an interrupt signal.
	// 1000 cycles at a 10ms interval is about 10 seconds of idle.
	QuietCycleLimit int
}

// DefaultConfig matches the cadence described in the control loop design.
func DefaultConfig() Config {
	return Config{PollInterval: 10 * time.Millisecond, QuietCycleLimit: 1000}
}

// Loop drives the mixer → muxer hand-off.
type Loop struct {
	cfg         Config
	interrupted atomic.Bool
	emitted     atomic.Int64
}

// New returns a loop with the given configuration.
func New(cfg Config) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.QuietCycleLimit <= 0 {
		cfg.QuietCycleLimit = 1000
	}
	return &Loop{cfg: cfg}
}

// Interrupt requests a graceful shutdown: the loop keeps draining until
// both queues are empty, or until the quiet-cycle limit is hit.
func (l *Loop) Interrupt() {
	l.interrupted.Store(true)
}

// Emitted returns how many frames this loop has popped so far.
func (l *Loop) Emitted() int64 {
	return l.emitted.Load()
}

// Run drains src into emit until termination. It returns normally once
// should-try-cycle goes false; callers typically run this on its own
// goroutine and call Interrupt from a signal handler.
func (l *Loop) Run(src Source, emit func(video *mediatypes.VideoFrame, audio *mediatypes.OutputAudioFrame, kind mediatypes.Kind)) {
	quietCycles := 0

	shouldTryCycle := func() bool {
		return (src.HasNext() || !l.interrupted.Load()) && quietCycles < l.cfg.QuietCycleLimit
	}

	for shouldTryCycle() {
		video, audio, kind, ok := src.Next()
		if !ok {
			quietCycles++
			time.Sleep(l.cfg.PollInterval)
			continue
		}
		quietCycles = 0
		l.emitted.Add(1)
		emit(video, audio, kind)
	}
}
