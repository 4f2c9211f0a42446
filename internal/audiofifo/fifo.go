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

// Package audiofifo reshapes the mixer's one-millisecond-per-frame output
// into the fixed-size frames an encoder wants (e.g. 1024 samples for AAC),
// stamping pts in stream-sample units instead of milliseconds.
package audiofifo

import (
	"errors"
	"log"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

// ErrInvalidFormat is returned by Consume when a frame's channel count or
// sample rate does not match the converter's configured input format.
var ErrInvalidFormat = errors.New("audiofifo: frame does not match configured input format")

// Config describes the fixed output shape this converter produces.
type Config struct {
	Channels  int
	Rate      int
	FrameSize int
	// PTSOffset shifts the stream-sample pts of the first emitted frame.
	// Already expressed in stream-sample units, unlike
	// frame_converter_config_s.pts_offset in the growing-file frame
	// converter this package is modeled on, which is in a different unit
	// and gets multiplied by sample_rate before use; there's no such
	// multiply here because this field is pre-scaled.
	PTSOffset int64
}

// Converter is a per-channel sample FIFO plus a fixed-size frame cutter.
type Converter struct {
	cfg           Config
	buf           [][]float32 // per channel, append-only ring via slice
	framesEmitted int64
	lastInPts     int64
	haveIn        bool
}

// New returns a converter for the given fixed output shape.
func New(cfg Config) *Converter {
	return &Converter{
		cfg: cfg,
		buf: make([][]float32, cfg.Channels),
	}
}

// Consume appends a frame's samples to the FIFO. Frames must arrive with
// non-decreasing pts; the pts itself is only used for an ordering check,
// since output pts is derived from frames_emitted * frame_size instead.
func (c *Converter) Consume(frame *mediatypes.AudioFrame) error {
	if frame.Channels != c.cfg.Channels || frame.SampleRate != c.cfg.Rate {
		return ErrInvalidFormat
	}
	if c.haveIn && frame.PTSMs < c.lastInPts {
		// Out-of-order input; still accept it (its samples are appended
		// after those already queued) but note the occurrence the way
		// audio_frame_converter.c's assert would have caught it in the
		// original source.
		log.Printf("audiofifo: input pts %d is behind previous %d", frame.PTSMs, c.lastInPts)
	}
	c.lastInPts = frame.PTSMs
	c.haveIn = true

	for ch := 0; ch < c.cfg.Channels; ch++ {
		if ch < len(frame.Samples) {
			c.buf[ch] = append(c.buf[ch], frame.Samples[ch]...)
		}
	}
	return nil
}

// Next pops one frame_size-sample frame, or reports NeedMore (false) when
// the FIFO does not yet hold enough samples.
func (c *Converter) Next() (*mediatypes.OutputAudioFrame, bool) {
	if len(c.buf) == 0 || len(c.buf[0]) < c.cfg.FrameSize {
		return nil, false
	}

	out := make([][]float32, c.cfg.Channels)
	for ch := 0; ch < c.cfg.Channels; ch++ {
		out[ch] = append([]float32(nil), c.buf[ch][:c.cfg.FrameSize]...)
		c.buf[ch] = append([]float32(nil), c.buf[ch][c.cfg.FrameSize:]...)
	}

	pts := c.cfg.PTSOffset + c.framesEmitted*int64(c.cfg.FrameSize)
	c.framesEmitted++

	return &mediatypes.OutputAudioFrame{
		PTSStream:   pts,
		SampleRate:  c.cfg.Rate,
		Channels:    c.cfg.Channels,
		SampleCount: c.cfg.FrameSize,
		Samples:     out,
	}, true
}

// Buffered returns the number of samples per channel currently queued.
func (c *Converter) Buffered() int {
	if len(c.buf) == 0 {
		return 0
	}
	return len(c.buf[0])
}
