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

// Package audiomixer sums PCM from any number of asynchronous sources onto
// a shared millisecond timeline, clipping to keep samples in [-1, 1] and
// filling silence where no source has data. Callers are expected to
// serialize their own access; the mixer keeps no internal lock, matching
// how archive_mixer.cc only ever touches its audio_mixer_s from the single
// thread handling consume_audio.
package audiomixer

import (
	"errors"
	"log"

	"github.com/e1z0/archivemixer/internal/mediatypes"
	"github.com/e1z0/archivemixer/internal/orderedframes"
)

// ErrFormatMismatch is returned when a frame's format disagrees with the
// format latched on the mixer's first consume call.
var ErrFormatMismatch = errors.New("audiomixer: frame format does not match latched format")

type slot struct {
	samples [][]float32 // [channel][sample]
}

// Mixer accumulates PCM into one slot per millisecond of global time.
type Mixer struct {
	latched    bool
	rate       int
	channels   int
	slots      *orderedframes.Map[*slot]
	lastOutPts int64
	haveOut    bool

	LateArrivals uint64
	ClipEvents   uint64
}

// New returns an empty mixer. Sample rate and channel count are latched
// from the first frame passed to Consume.
func New() *Mixer {
	return &Mixer{slots: orderedframes.New[*slot]()}
}

func (m *Mixer) samplesPerMs() int {
	return m.rate / 1000
}

func (m *Mixer) newSlot() *slot {
	s := &slot{samples: make([][]float32, m.channels)}
	n := m.samplesPerMs()
	for c := range s.samples {
		s.samples[c] = make([]float32, n)
	}
	return s
}

func (m *Mixer) slotAt(pts int64) *slot {
	if s, ok := m.slots.Get(pts); ok {
		return s
	}
	s := m.newSlot()
	m.slots.Set(pts, s)
	return s
}

// Consume folds a PCM frame into the per-millisecond mix slots it spans.
func (m *Mixer) Consume(frame *mediatypes.AudioFrame) error {
	if !m.latched {
		m.rate = frame.SampleRate
		m.channels = frame.Channels
		m.latched = true
		// Pre-fill silence from 0 up to this frame's start so drain begins
		// at global time 0, matching the behavior the archive mixer itself
		// relies on when the first audio arrives after the first video tick.
		for ms := int64(0); ms < frame.PTSMs; ms++ {
			if !m.slots.Has(ms) {
				m.slots.Set(ms, m.newSlot())
			}
		}
	}
	if frame.SampleRate != m.rate || frame.Channels != m.channels {
		return ErrFormatMismatch
	}

	perMs := m.samplesPerMs()
	durationMs := frame.DurationMs()
	if durationMs == 0 {
		return nil
	}

	for i := int64(0); i < durationMs; i++ {
		ms := frame.PTSMs + i
		if m.haveOut && ms <= m.lastOutPts {
			m.LateArrivals++
			continue
		}
		s := m.slotAt(ms)
		for c := 0; c < m.channels && c < len(frame.Samples); c++ {
			src := frame.Samples[c]
			for j := 0; j < perMs; j++ {
				idx := int(i)*perMs + j
				if idx >= len(src) {
					break
				}
				v := s.samples[c][j] + src[idx]
				if v > 1 {
					v = 1
					m.ClipEvents++
				} else if v < -1 {
					v = -1
					m.ClipEvents++
				}
				s.samples[c][j] = v
			}
		}
	}

	m.fillGapToTail()
	return nil
}

// fillGapToTail keeps the slot-key range contiguous: if there's a hole
// between the current head and the highest key seen, it is backfilled
// with silence so Next never has to special-case a non-contiguous map.
func (m *Mixer) fillGapToTail() {
	keys := m.slots.Keys()
	if len(keys) < 2 {
		return
	}
	head, tail := keys[0], keys[len(keys)-1]
	for ms := head; ms <= tail; ms++ {
		if !m.slots.Has(ms) {
			m.slots.Set(ms, m.newSlot())
		}
	}
}

// Next pops the earliest mix slot in presentation order, synthesizing
// silence if the map's head has a gap before the next expected pts.
func (m *Mixer) Next() (*mediatypes.AudioFrame, bool) {
	key, s, ok := m.slots.Min()
	if !ok {
		return nil, false
	}

	if !m.haveOut {
		m.slots.Delete(key)
		m.lastOutPts = key
		m.haveOut = true
		return m.frameFromSlot(key, s), true
	}

	want := m.lastOutPts + 1
	if key == want {
		m.slots.Delete(key)
		m.lastOutPts = want
		return m.frameFromSlot(key, s), true
	}
	if key > want {
		silent := m.newSlot()
		m.lastOutPts = want
		return m.frameFromSlot(want, silent), true
	}
	// key < want should not happen (fillGapToTail + late-arrival discard
	// keep the head monotonic), but guard defensively.
	log.Printf("audiomixer: unexpected slot key %d behind last output %d", key, m.lastOutPts)
	m.slots.Delete(key)
	return m.Next()
}

func (m *Mixer) frameFromSlot(pts int64, s *slot) *mediatypes.AudioFrame {
	return &mediatypes.AudioFrame{
		PTSMs:       pts,
		SampleRate:  m.rate,
		Channels:    m.channels,
		SampleCount: m.samplesPerMs(),
		Samples:     s.samples,
	}
}

// HeadTS returns the smallest live slot's pts, or 0 if the mixer is empty.
func (m *Mixer) HeadTS() int64 {
	if key, _, ok := m.slots.Min(); ok {
		return key
	}
	return 0
}

// Length returns the number of buffered milliseconds (live slots).
func (m *Mixer) Length() int {
	return m.slots.Len()
}
