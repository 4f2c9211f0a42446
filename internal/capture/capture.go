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

// Package capture pulls PCM from the host's default audio input device
// using portaudio and hands it to the archive mixer as an ordinary audio
// source. It plays the same role pulse_audio_source.cc plays in the
// original implementation: a background producer with its own queue and a
// single mutex guarding push/pop, notifying a callback whenever new frames
// are queue-available.
package capture

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

// Config configures the capture device stream.
type Config struct {
	SampleRate int
	Channels   int
	// FramesPerBuffer controls latency vs. callback overhead, mirroring
	// portaudio's usual buffer-size knob.
	FramesPerBuffer int
	// OnAudioData is invoked (from the capture goroutine) whenever at
	// least one frame becomes available in the queue, edge-triggered the
	// way the original pulse source's callback is.
	OnAudioData func()
}

// Capture is a background PCM producer backed by a portaudio input stream.
type Capture struct {
	cfg         Config
	stream      *portaudio.Stream
	initialTs   int64
	haveInitial bool
	samplesSeen int64

	mu      sync.Mutex
	queue   []*mediatypes.AudioFrame
	running bool
}

// New builds a Capture but does not open the device; call Start for that.
func New(cfg Config) *Capture {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = cfg.SampleRate / 100 // 10ms chunks by default
	}
	return &Capture{cfg: cfg}
}

// Start initializes portaudio and opens the default input stream.
func (c *Capture) Start(nowMs int64) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}

	in := make([]int16, c.cfg.FramesPerBuffer*c.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		c.cfg.Channels, 0, float64(c.cfg.SampleRate), len(in), func(inBuf []int16) {
			c.onBuffer(inBuf)
		},
	)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}

	c.initialTs = nowMs
	c.haveInitial = true
	c.stream = stream

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	return nil
}

func (c *Capture) onBuffer(in []int16) {
	n := len(in) / c.cfg.Channels
	samples := make([][]float32, c.cfg.Channels)
	for ch := 0; ch < c.cfg.Channels; ch++ {
		samples[ch] = make([]float32, n)
		for i := 0; i < n; i++ {
			samples[ch][i] = float32(in[i*c.cfg.Channels+ch]) / 32768.0
		}
	}

	c.mu.Lock()
	elapsedMs := c.samplesSeen * 1000 / int64(c.cfg.SampleRate)
	c.samplesSeen += int64(n)
	pts := c.initialTs + elapsedMs
	frame := &mediatypes.AudioFrame{
		PTSMs:       pts,
		SampleRate:  c.cfg.SampleRate,
		Channels:    c.cfg.Channels,
		SampleCount: n,
		Samples:     samples,
	}
	c.queue = append(c.queue, frame)
	c.mu.Unlock()

	if c.cfg.OnAudioData != nil {
		c.cfg.OnAudioData()
	}
}

// Stop closes the stream and releases portaudio's global state.
func (c *Capture) Stop() {
	c.mu.Lock()
	running := c.running
	c.running = false
	c.mu.Unlock()
	if !running {
		return
	}
	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	portaudio.Terminate()
}

// IsRunning reports whether the capture stream is active.
func (c *Capture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// HasNext reports whether a captured frame is waiting to be consumed.
func (c *Capture) HasNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

// Next pops the oldest captured frame.
func (c *Capture) Next() (*mediatypes.AudioFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	f := c.queue[0]
	c.queue = c.queue[1:]
	return f, true
}

// InitialTS returns the global time, in milliseconds, the capture stream
// started at.
func (c *Capture) InitialTS() int64 {
	return c.initialTs
}
