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

// Package audiosource decodes a remote subscriber's continuously growing
// compressed audio file. The file is written by another process; when the
// decoder runs dry it may simply mean the writer hasn't flushed more data
// yet, so the source closes and reopens the file once per NextFrame call
// before giving up, the same dance growing_file_audio_source.c does.
package audiosource

import (
	"errors"
	"fmt"
	"log"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

// ErrNoMoreFrames means no frame is available right now; the caller should
// try again later; it does not mean the source is closed for good.
var ErrNoMoreFrames = errors.New("audiosource: no frame available")

// Config describes one subscriber's growing audio file.
type Config struct {
	Path string
	// InitialTimestampMs is the global time, in milliseconds, that this
	// source's sample 0 corresponds to.
	InitialTimestampMs int64
	// PreferExternalOpus, when true, opens libopus instead of the
	// built-in opus decoder if both are available, matching the decoder
	// preference growing_file_audio_source.c applies for AV_CODEC_ID_OPUS.
	PreferExternalOpus bool
}

// Source decodes one subscriber's audio file incrementally.
type Source struct {
	cfg Config

	fc        *astiav.FormatContext
	streamIdx int
	dec       *astiav.CodecContext
	frame     *astiav.Frame
	pkt       *astiav.Packet

	lastPtsRead int64
	haveLastPts bool
	triedReopen bool
}

// Open opens the file and locates its audio stream and decoder.
func Open(cfg Config) (*Source, error) {
	s := &Source{cfg: cfg}
	if err := s.openStream(); err != nil {
		return nil, err
	}
	s.pkt = astiav.AllocPacket()
	s.frame = astiav.AllocFrame()
	return s, nil
}

func (s *Source) openStream() error {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return errors.New("audiosource: AllocFormatContext")
	}
	if err := fc.OpenInput(s.cfg.Path, nil, nil); err != nil {
		fc.Free()
		return fmt.Errorf("audiosource: OpenInput: %w", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("audiosource: FindStreamInfo: %w", err)
	}

	idx := -1
	for i, st := range fc.Streams() {
		if st.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			idx = i
			break
		}
	}
	if idx < 0 {
		fc.CloseInput()
		fc.Free()
		return errors.New("audiosource: no audio stream")
	}

	par := fc.Streams()[idx].CodecParameters()
	dec := astiav.FindDecoder(par.CodecID())
	if par.CodecID() == astiav.CodecIDOpus && s.cfg.PreferExternalOpus {
		if ext := astiav.FindDecoderByName("libopus"); ext != nil {
			dec = ext
		}
	}
	if dec == nil {
		fc.CloseInput()
		fc.Free()
		return errors.New("audiosource: FindDecoder nil")
	}

	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		fc.CloseInput()
		fc.Free()
		return errors.New("audiosource: AllocCodecContext nil")
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("audiosource: ToCodecContext: %w", err)
	}
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("audiosource: open decoder: %w", err)
	}

	if s.fc != nil {
		s.fc.CloseInput()
		s.fc.Free()
	}
	if s.dec != nil {
		s.dec.Free()
	}
	s.fc = fc
	s.streamIdx = idx
	s.dec = ctx
	return nil
}

// reopen re-opens the file from scratch, used when EOF is hit mid-call;
// the file may have grown since the last read.
func (s *Source) reopen() error {
	log.Printf("audiosource: reopening %s", s.cfg.Path)
	return s.openStream()
}

// NextFrame decodes and returns the next PCM frame, stamped with global
// time via InitialTimestampMs + the decoder's own presentation time.
// Packets at or before the last pts returned are skipped (this happens
// naturally right after a reopen re-reads from the start of the file).
func (s *Source) NextFrame() (*mediatypes.AudioFrame, error) {
	s.triedReopen = false
	for {
		if err := s.fc.ReadFrame(s.pkt); err != nil {
			if !s.triedReopen {
				s.triedReopen = true
				if rerr := s.reopen(); rerr != nil {
					return nil, fmt.Errorf("audiosource: reopen: %w", rerr)
				}
				continue
			}
			return nil, ErrNoMoreFrames
		}

		if s.pkt.StreamIndex() != s.streamIdx {
			s.pkt.Unref()
			continue
		}

		if s.haveLastPts && s.pkt.Pts() <= s.lastPtsRead {
			s.pkt.Unref()
			continue
		}

		if err := s.dec.SendPacket(s.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
			s.pkt.Unref()
			return nil, fmt.Errorf("audiosource: SendPacket: %w", err)
		}
		s.pkt.Unref()

		if err := s.dec.ReceiveFrame(s.frame); err != nil {
			continue
		}

		out := s.frameToMediaFrame(s.frame)
		s.lastPtsRead = s.frame.Pts()
		s.haveLastPts = true
		s.frame.Unref()
		return out, nil
	}
}

func (s *Source) frameToMediaFrame(f *astiav.Frame) *mediatypes.AudioFrame {
	channels := f.ChannelLayout().Channels()
	n := f.NbSamples()
	samples := make([][]float32, channels)
	for c := 0; c < channels; c++ {
		samples[c] = decodeS16ToFloat32(f, c, n)
	}
	return &mediatypes.AudioFrame{
		PTSMs:       f.Pts() + s.cfg.InitialTimestampMs,
		SampleRate:  f.SampleRate(),
		Channels:    channels,
		SampleCount: n,
		Samples:     samples,
	}
}

// decodeS16ToFloat32 reads a packed or planar S16 plane and converts it to
// normalized float32 samples. Other sample formats would need their own
// conversion; remote subscribers in this system always encode PCM s16.
// Divides by 32768 (the symmetric full-scale divisor for s16) rather than
// the 32767 in §4.2's literal formula; internal/capture uses 32768 too.
// The mixer sums already-normalized float32 and never divides, so the
// divisor only matters where s16 is converted.
func decodeS16ToFloat32(f *astiav.Frame, channel, nbSamples int) []float32 {
	out := make([]float32, nbSamples)
	raw, err := f.Data().Bytes(channel)
	if err != nil || len(raw) < nbSamples*2 {
		return out
	}
	for i := 0; i < nbSamples; i++ {
		v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}

// InitialTimestampMs returns the global time this source's sample 0 maps to.
func (s *Source) InitialTimestampMs() int64 {
	return s.cfg.InitialTimestampMs
}

// Close releases the decoder and format context.
func (s *Source) Close() {
	if s.frame != nil {
		s.frame.Free()
	}
	if s.pkt != nil {
		s.pkt.Free()
	}
	if s.dec != nil {
		s.dec.Free()
	}
	if s.fc != nil {
		s.fc.CloseInput()
		s.fc.Free()
	}
}
