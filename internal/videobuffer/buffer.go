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

// Package videobuffer turns irregularly timestamped screencast frames into
// a constant-rate train by holding the latest frame and duplicating it
// into every output tick until a newer one arrives. There is no
// interpolation: screencast content is discrete UI state, so repeating the
// last known frame is the correct (and cheapest) resampling.
package videobuffer

import "github.com/e1z0/archivemixer/internal/mediatypes"

// Buffer is a sample-and-hold constant-rate resampler.
type Buffer struct {
	periodMs  int64
	nextEmit  int64
	haveFirst bool
	latest    *mediatypes.VideoFrame
	queue     []*mediatypes.VideoFrame
}

// New returns a buffer that emits one frame every periodMs milliseconds.
func New(periodMs int64) *Buffer {
	if periodMs <= 0 {
		periodMs = 1
	}
	return &Buffer{periodMs: periodMs}
}

// Consume accepts the next input frame and emits as many output ticks as
// its arrival unlocks into the internal queue.
//
// Ticks strictly before frame.PTSMs are still owned by whichever frame was
// latest before this call arrived: this frame did not exist yet at those
// real times, so sample-and-hold must keep repeating the old one. Only
// once the catch-up walk reaches frame.PTSMs does the new frame take over.
func (b *Buffer) Consume(frame *mediatypes.VideoFrame) {
	if !b.haveFirst {
		b.nextEmit = 0
		b.haveFirst = true
	}

	for b.latest != nil && b.nextEmit < frame.PTSMs {
		out := b.latest.Clone()
		out.PTSMs = b.nextEmit
		b.queue = append(b.queue, out)
		b.nextEmit += b.periodMs
	}

	b.latest = frame.Clone()

	for b.nextEmit <= frame.PTSMs {
		out := b.latest.Clone()
		out.PTSMs = b.nextEmit
		b.queue = append(b.queue, out)
		b.nextEmit += b.periodMs
	}
}

// HasNext reports whether a resampled frame is ready to be drained.
func (b *Buffer) HasNext() bool {
	return len(b.queue) > 0
}

// Next pops the oldest resampled frame from the internal queue.
func (b *Buffer) Next() (*mediatypes.VideoFrame, bool) {
	if len(b.queue) == 0 {
		return nil, false
	}
	f := b.queue[0]
	b.queue = b.queue[1:]
	return f, true
}
