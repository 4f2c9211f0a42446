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

package imagedecode

import (
	"runtime"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

// job is one decode request dispatched to the pool.
type job struct {
	png []byte
	ts  int64
	out chan<- Result
}

// Result is a completed decode, paired back up with the caller's timestamp.
type Result struct {
	Frame *mediatypes.VideoFrame
	TsMs  int64
	Err   error
}

// Pool is the concurrent image-decode dispatcher described for the
// transport goroutine: decoding a screencast PNG is pure CPU work, so it's
// offloaded to a small fixed pool instead of running inline on whichever
// goroutine received the message. video_factory.h sketches this same idea
// in the original source (video_job_s / video_factory_consume) but never
// wires it up; this is that pool, actually built and actually used.
type Pool struct {
	jobs chan job
	done chan struct{}
}

// NewPool starts a pool sized to cores-1 workers (minimum 1). Passing 0
// picks that default.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	p := &Pool{jobs: make(chan job, workers*2), done: make(chan struct{})}
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			frame, err := Decode(j.png)
			if frame != nil {
				frame.PTSMs = j.ts
			}
			j.out <- Result{Frame: frame, TsMs: j.ts, Err: err}
		case <-p.done:
			return
		}
	}
}

// Submit queues a decode job and returns a channel that receives exactly
// one Result.
func (p *Pool) Submit(png []byte, tsMs int64) <-chan Result {
	out := make(chan Result, 1)
	p.jobs <- job{png: png, ts: tsMs, out: out}
	return out
}

// Close signals the workers to exit: a job already being decoded finishes,
// but jobs still queued, or submitted afterwards, may never be processed.
func (p *Pool) Close() {
	close(p.done)
}
