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

// Package archivemixer is the orchestrator: it owns the video buffer, the
// audio mixer and sample FIFO, every subscriber's audio source, and the
// two ordered output queues that get merged into the single interleaved
// stream the muxer consumes.
//
// ConsumeVideo requires external serialization: archive_mixer.cc's comment
// on on_video_msg is blunt about why — the video buffer and the archive's
// video queue do not reorder frames, so if more than one goroutine can call
// ConsumeVideo concurrently, the caller must hold a lock around the call.
// The package provides no wrapper type that serializes calls on its behalf.
package archivemixer

import (
	"errors"
	"log"
	"sync"

	"github.com/e1z0/archivemixer/internal/audiofifo"
	"github.com/e1z0/archivemixer/internal/audiomixer"
	"github.com/e1z0/archivemixer/internal/audiosource"
	"github.com/e1z0/archivemixer/internal/mediatypes"
	"github.com/e1z0/archivemixer/internal/orderedframes"
	"github.com/e1z0/archivemixer/internal/videobuffer"
)

// ErrSourceOpenFailed is returned (and logged) when a subscriber's audio
// file cannot be opened; the subscriber is not cached, so a later message
// for the same subscriber_id will retry.
var ErrSourceOpenFailed = errors.New("archivemixer: unable to open audio source")

// Config holds the tunables the original hard-codes in ichabod.c's
// build_mixer (min_buffer_time, video_fps_out) plus the two values the
// reimplementation turns from magic constants into configuration:
// the mergesort rate factor (derived from AudioRateOut, never hard-coded
// to 48) and CaptureDelayMS (replacing the unexplained "-= 1000").
type Config struct {
	MinBufferMS    int64
	VideoFPSOut    int
	VideoTimeBase  int64 // denominator of the output video time base, e.g. 1000
	AudioRateOut   int
	AudioChannels  int
	AudioFrameSize int
	CaptureDelayMS int64
}

// Mixer is the archive mixer orchestrator (C6).
type Mixer struct {
	cfg Config

	initialTimestampMs int64
	haveInitial        bool

	video *videobuffer.Buffer
	mix   *audiomixer.Mixer
	fifo  *audiofifo.Converter

	sourcesMu sync.Mutex
	sources   map[string]*audiosource.Source

	queueMu    sync.Mutex
	videoQueue *orderedframes.Map[*mediatypes.VideoFrame]
	audioQueue *orderedframes.Map[*mediatypes.OutputAudioFrame]
	draining   bool
}

// New constructs an idle mixer; ConsumeVideo primes it on first call,
// exactly as on_audio_data in ichabod.c waits for a video callback before
// anything downstream of the mixer can run.
func New(cfg Config) *Mixer {
	periodMs := int64(1000) / int64(cfg.VideoFPSOut)
	if cfg.VideoTimeBase > 0 {
		periodMs = cfg.VideoTimeBase / int64(cfg.VideoFPSOut)
	}
	return &Mixer{
		cfg:        cfg,
		video:      videobuffer.New(periodMs),
		mix:        audiomixer.New(),
		fifo:       audiofifo.New(audiofifo.Config{Channels: cfg.AudioChannels, Rate: cfg.AudioRateOut, FrameSize: cfg.AudioFrameSize}),
		sources:    make(map[string]*audiosource.Source),
		videoQueue: orderedframes.New[*mediatypes.VideoFrame](),
		audioQueue: orderedframes.New[*mediatypes.OutputAudioFrame](),
	}
}

// ConsumeVideo hands one input frame to the constant-rate video buffer and
// drains whatever output ticks that unlocks into the video queue.
// tsMs is the producer's global timestamp, in milliseconds.
//
// Not internally synchronized against concurrent callers; see the package
// doc. Callers with more than one video-producing goroutine hold their own
// lock around each call.
func (m *Mixer) ConsumeVideo(frame *mediatypes.VideoFrame, tsMs int64) {
	if !m.haveInitial {
		m.initialTimestampMs = tsMs
		m.haveInitial = true
	}
	frame.PTSMs = tsMs - m.initialTimestampMs

	m.video.Consume(frame)
	for m.video.HasNext() {
		out, ok := m.video.Next()
		if !ok {
			break
		}
		m.queueMu.Lock()
		m.videoQueue.Set(out.PTSMs, out)
		m.queueMu.Unlock()
	}
}

func (m *Mixer) audioSource(subscriberID, path string, tsMs int64) (*audiosource.Source, error) {
	m.sourcesMu.Lock()
	defer m.sourcesMu.Unlock()

	if s, ok := m.sources[subscriberID]; ok {
		return s, nil
	}
	s, err := audiosource.Open(audiosource.Config{Path: path, InitialTimestampMs: int64(tsMs)})
	if err != nil {
		return nil, err
	}
	m.sources[subscriberID] = s
	return s, nil
}

// ConsumeAudio pulls every currently available frame from one subscriber's
// growing file, feeds the mixer, and drains down through the sample FIFO
// into the audio queue once the mixer's buffered duration exceeds
// MinBufferMS. tsMs is the global time the source itself considers to be
// its sample 0 (i.e. when the subscriber connected), not the frame pts.
func (m *Mixer) ConsumeAudio(path string, tsMs int64, subscriberID string) {
	if !m.haveInitial {
		// The mixer's global clock is established by the first video
		// frame; nothing can be timestamped meaningfully before that.
		return
	}

	source, err := m.audioSource(subscriberID, path, tsMs)
	if err != nil {
		log.Printf("archivemixer: %s: %v", subscriberID, ErrSourceOpenFailed)
		return
	}

	sourceOffsetMs := source.InitialTimestampMs() - m.initialTimestampMs - m.cfg.CaptureDelayMS

	for {
		frame, err := source.NextFrame()
		if err != nil {
			break
		}
		frame.PTSMs += sourceOffsetMs
		if err := m.mix.Consume(frame); err != nil {
			log.Printf("archivemixer: mixer consume for %s: %v", subscriberID, err)
		}
	}

	for int64(m.mix.Length()) > m.cfg.MinBufferMS {
		mixed, ok := m.mix.Next()
		if !ok {
			break
		}
		if err := m.fifo.Consume(mixed); err != nil {
			log.Printf("archivemixer: fifo consume: %v", err)
		}
	}

	m.drainFIFOIntoQueue()
}

// DrainCapture pulls everything the local capture source has queued into
// the mixer, then drains the FIFO the same way ConsumeAudio does. Intended
// to be invoked from the capture device's OnAudioData callback.
func (m *Mixer) DrainCapture(pull func() (*mediatypes.AudioFrame, bool)) {
	if !m.haveInitial {
		return
	}
	for {
		frame, ok := pull()
		if !ok {
			break
		}
		if err := m.mix.Consume(frame); err != nil {
			log.Printf("archivemixer: capture consume: %v", err)
		}
	}
	m.drainFIFOIntoQueue()
}

func (m *Mixer) drainFIFOIntoQueue() {
	for {
		out, ok := m.fifo.Next()
		if !ok {
			break
		}
		m.queueMu.Lock()
		m.audioQueue.Set(out.PTSStream, out)
		m.queueMu.Unlock()
	}
}

// Interrupt moves the mixer from Primed into Draining: the both-channel
// readiness gate in HasNext/Next is relaxed so that whichever queue still
// holds frames gets flushed instead of waiting forever for the other side,
// matching invariant 6's drain exception and the C6 state machine's
// Primed → Draining transition.
func (m *Mixer) Interrupt() {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	m.draining = true
}

// HasNext reports whether a frame is available to pop. While Primed, that
// means both the audio and video queues hold at least one frame — the
// cross-stream readiness gate from the data model's invariant 6. Once
// Interrupt has moved the mixer into Draining, either queue being
// non-empty is enough, so the remaining side gets flushed out instead of
// blocking behind a source that will never produce again.
func (m *Mixer) HasNext() bool {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if m.draining {
		return m.videoQueue.Len() > 0 || m.audioQueue.Len() > 0
	}
	return m.videoQueue.Len() > 0 && m.audioQueue.Len() > 0
}

// audioRatePerMs derives the mergesort rate factor from configuration
// instead of hard-coding it to 48 the way frame_queue_pop_safe does.
func (m *Mixer) audioRatePerMs() int64 {
	return int64(m.cfg.AudioRateOut) / 1000
}

// Next merges the heads of the two output queues and returns whichever is
// earlier in real time, erasing it from its queue. Ties prefer audio.
func (m *Mixer) Next() (*mediatypes.VideoFrame, *mediatypes.OutputAudioFrame, mediatypes.Kind, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	vKey, vFrame, vOK := m.videoQueue.Min()
	aKey, aFrame, aOK := m.audioQueue.Min()

	if !m.draining && (!vOK || !aOK) {
		// Primed: the both-channel readiness gate blocks emission until
		// the other side catches up.
		return nil, nil, 0, false
	}
	if !vOK && !aOK {
		return nil, nil, 0, false
	}
	if vOK && !aOK {
		m.videoQueue.Delete(vKey)
		return vFrame, nil, mediatypes.KindVideo, true
	}
	if aOK && !vOK {
		m.audioQueue.Delete(aKey)
		return nil, aFrame, mediatypes.KindAudio, true
	}

	// Both present: rescale audio's stream-sample pts to the video's
	// millisecond timebase before comparing, deriving the rate factor
	// from configuration rather than the original's hard-coded `* 48`.
	if aKey <= vKey*m.audioRatePerMs() {
		m.audioQueue.Delete(aKey)
		return nil, aFrame, mediatypes.KindAudio, true
	}
	m.videoQueue.Delete(vKey)
	return vFrame, nil, mediatypes.KindVideo, true
}

// Close releases every open audio source.
func (m *Mixer) Close() {
	m.sourcesMu.Lock()
	defer m.sourcesMu.Unlock()
	for _, s := range m.sources {
		s.Close()
	}
}
