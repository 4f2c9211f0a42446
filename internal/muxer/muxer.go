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

// Package muxer writes the archive mixer's merged output to a file or an
// RTMP endpoint. It is built directly on video.go's startRecorder /
// closeRecorder pair: same AllocOutputFormatContext/OpenIOContext/
// WriteHeader/WriteInterleavedFrame/WriteTrailer sequence, generalized
// from "one camera's passthrough + AAC re-encode" to "this session's own
// synthesized YUV420P video and mixed-down PCM audio, both freshly
// encoded" (there is no passthrough path here: archivemixer's video frames
// come from the image decoder, not from a compressed source stream, so
// there's nothing to stream-copy).
package muxer

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

// Config describes the output codecs and cadence.
type Config struct {
	Width, Height  int
	FPS            int
	AudioSampleRate int
	AudioChannels   int
}

// Muxer owns the output container, its two encoders, and the scratch
// frames/packets reused across writes.
type Muxer struct {
	cfg Config

	oc *astiav.FormatContext
	pb *astiav.IOContext

	vEncCtx *astiav.CodecContext
	vStream *astiav.Stream
	vFrame  *astiav.Frame
	vFrames int64

	aEncCtx *astiav.CodecContext
	aStream *astiav.Stream
	aFrame  *astiav.Frame

	pkt *astiav.Packet
}

// isStreamTarget reports whether path should be opened as a streaming
// (RTMP) destination rather than a local file, per the CLI surface's
// path-prefix dispatch.
func isStreamTarget(path string) bool {
	return strings.HasPrefix(path, "rtmp://") || strings.HasPrefix(path, "rtmps://")
}

// New opens path (a file path, or an rtmp(s):// URL) and configures both
// output streams.
func New(path string, cfg Config) (*Muxer, error) {
	format := "mp4"
	if isStreamTarget(path) {
		format = "flv"
	}

	oc, err := astiav.AllocOutputFormatContext(nil, format, path)
	if err != nil || oc == nil {
		return nil, fmt.Errorf("muxer: AllocOutputFormatContext: %w", err)
	}

	ioFlags := astiav.NewIOContextFlags(astiav.IOContextFlagWrite)
	pb, err := astiav.OpenIOContext(path, ioFlags, nil, nil)
	if err != nil {
		oc.Free()
		return nil, fmt.Errorf("muxer: OpenIOContext: %w", err)
	}
	oc.SetPb(pb)

	m := &Muxer{cfg: cfg, oc: oc, pb: pb, pkt: astiav.AllocPacket()}

	if err := m.openVideoEncoder(); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.openAudioEncoder(); err != nil {
		m.Close()
		return nil, err
	}

	if err := oc.WriteHeader(nil); err != nil {
		m.Close()
		return nil, fmt.Errorf("muxer: WriteHeader: %w", err)
	}
	return m, nil
}

func (m *Muxer) openVideoEncoder() error {
	enc := astiav.FindEncoder(astiav.CodecIDH264)
	if enc == nil {
		return errors.New("muxer: H264 encoder not found")
	}
	ctx := astiav.AllocCodecContext(enc)
	if ctx == nil {
		return errors.New("muxer: AllocCodecContext(video) nil")
	}
	ctx.SetWidth(m.cfg.Width)
	ctx.SetHeight(m.cfg.Height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(astiav.NewRational(1, m.cfg.FPS))
	ctx.SetFramerate(astiav.NewRational(m.cfg.FPS, 1))

	if err := ctx.Open(enc, nil); err != nil {
		ctx.Free()
		return fmt.Errorf("muxer: open video encoder: %w", err)
	}

	st := m.oc.NewStream(enc)
	if st == nil {
		ctx.Free()
		return errors.New("muxer: NewStream(video) nil")
	}
	if err := ctx.ToCodecParameters(st.CodecParameters()); err != nil {
		ctx.Free()
		return fmt.Errorf("muxer: ToCodecParameters(video): %w", err)
	}
	st.SetTimeBase(ctx.TimeBase())

	m.vEncCtx = ctx
	m.vStream = st
	m.vFrame = astiav.AllocFrame()
	return nil
}

func (m *Muxer) openAudioEncoder() error {
	enc := astiav.FindEncoder(astiav.CodecIDAac)
	if enc == nil {
		return errors.New("muxer: AAC encoder not found")
	}
	ctx := astiav.AllocCodecContext(enc)
	if ctx == nil {
		return errors.New("muxer: AllocCodecContext(audio) nil")
	}

	layout := astiav.ChannelLayoutMono
	if m.cfg.AudioChannels == 2 {
		layout = astiav.ChannelLayoutStereo
	}
	ctx.SetChannelLayout(layout)
	ctx.SetSampleRate(m.cfg.AudioSampleRate)
	if sfs := enc.SampleFormats(); len(sfs) > 0 {
		ctx.SetSampleFormat(sfs[0])
	}
	ctx.SetTimeBase(astiav.NewRational(1, m.cfg.AudioSampleRate))
	ctx.SetBitRate(128000)
	ctx.SetStrictStdCompliance(astiav.StrictStdComplianceExperimental)

	if err := ctx.Open(enc, nil); err != nil {
		ctx.Free()
		return fmt.Errorf("muxer: open audio encoder: %w", err)
	}

	st := m.oc.NewStream(enc)
	if st == nil {
		ctx.Free()
		return errors.New("muxer: NewStream(audio) nil")
	}
	if err := ctx.ToCodecParameters(st.CodecParameters()); err != nil {
		ctx.Free()
		return fmt.Errorf("muxer: ToCodecParameters(audio): %w", err)
	}
	st.SetTimeBase(ctx.TimeBase())

	m.aEncCtx = ctx
	m.aStream = st
	m.aFrame = astiav.AllocFrame()
	return nil
}

// WriteVideo encodes one constant-rate YUV420P frame and muxes every
// packet the encoder produces for it.
func (m *Muxer) WriteVideo(frame *mediatypes.VideoFrame) error {
	m.vFrame.SetWidth(frame.Width)
	m.vFrame.SetHeight(frame.Height)
	m.vFrame.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := m.vFrame.AllocBuffer(1); err != nil {
		return fmt.Errorf("muxer: video AllocBuffer: %w", err)
	}
	if err := uploadPlanes(m.vFrame, planesOf(frame)); err != nil {
		return err
	}
	m.vFrame.SetPts(m.vFrames)
	m.vFrames++

	if err := m.vEncCtx.SendFrame(m.vFrame); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return fmt.Errorf("muxer: video SendFrame: %w", err)
	}
	return m.drainVideoPackets()
}

func (m *Muxer) drainVideoPackets() error {
	for {
		if err := m.vEncCtx.ReceivePacket(m.pkt); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("muxer: video ReceivePacket: %w", err)
		}
		m.pkt.SetStreamIndex(m.vStream.Index())
		m.pkt.RescaleTs(m.vEncCtx.TimeBase(), m.vStream.TimeBase())
		if err := m.oc.WriteInterleavedFrame(m.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
			log.Printf("muxer: WriteInterleavedFrame(video): %v", err)
		}
		m.pkt.Unref()
	}
}

// WriteAudio encodes one fixed-size PCM frame and muxes every packet the
// encoder produces for it.
func (m *Muxer) WriteAudio(frame *mediatypes.OutputAudioFrame) error {
	m.aFrame.SetSampleFormat(m.aEncCtx.SampleFormat())
	m.aFrame.SetChannelLayout(m.aEncCtx.ChannelLayout())
	m.aFrame.SetSampleRate(m.aEncCtx.SampleRate())
	m.aFrame.SetNbSamples(frame.SampleCount)
	if err := m.aFrame.AllocBuffer(0); err != nil {
		return fmt.Errorf("muxer: audio AllocBuffer: %w", err)
	}
	if err := uploadAudioPlanes(m.aFrame, frame.Samples); err != nil {
		return err
	}
	m.aFrame.SetPts(frame.PTSStream)

	if err := m.aEncCtx.SendFrame(m.aFrame); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return fmt.Errorf("muxer: audio SendFrame: %w", err)
	}
	return m.drainAudioPackets()
}

func (m *Muxer) drainAudioPackets() error {
	for {
		if err := m.aEncCtx.ReceivePacket(m.pkt); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("muxer: audio ReceivePacket: %w", err)
		}
		m.pkt.SetStreamIndex(m.aStream.Index())
		m.pkt.RescaleTs(m.aEncCtx.TimeBase(), m.aStream.TimeBase())
		if err := m.oc.WriteInterleavedFrame(m.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
			log.Printf("muxer: WriteInterleavedFrame(audio): %v", err)
		}
		m.pkt.Unref()
	}
}

// planesOf slices a tightly packed YUV420P buffer back into its three
// planes, the inverse of what imagedecode.rgbaToYUV420 builds.
func planesOf(f *mediatypes.VideoFrame) [][]byte {
	ySize := f.Width * f.Height
	cSize := (f.Width / 2) * (f.Height / 2)
	return [][]byte{
		f.Pixels[:ySize],
		f.Pixels[ySize : ySize+cSize],
		f.Pixels[ySize+cSize:],
	}
}

// uploadPlanes copies plane bytes into an allocated astiav.Frame. This is
// the one call in the module with no direct grounding in the retrieved
// pack: every read of frame plane bytes (ImageCopyToBuffer, Data().Bytes)
// is exercised on decoder output, never on a frame this code built itself.
// SetBytes is assumed to be the upload-side counterpart of the
// already-confirmed Bytes() getter on the same Data() accessor.
func uploadPlanes(f *astiav.Frame, planes [][]byte) error {
	for i, p := range planes {
		if err := f.Data().SetBytes(p, i); err != nil {
			return fmt.Errorf("muxer: upload plane %d: %w", i, err)
		}
	}
	return nil
}

// uploadAudioPlanes copies per-channel float32 PCM into an allocated
// astiav.Frame, one plane per channel (planar layout).
func uploadAudioPlanes(f *astiav.Frame, samples [][]float32) error {
	for ch, chSamples := range samples {
		buf := make([]byte, len(chSamples)*4)
		for i, s := range chSamples {
			putFloat32LE(buf[i*4:], s)
		}
		if err := f.Data().SetBytes(buf, ch); err != nil {
			return fmt.Errorf("muxer: upload audio plane %d: %w", ch, err)
		}
	}
	return nil
}

func putFloat32LE(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

// Close flushes both encoders, writes the trailer, and releases every
// FFmpeg resource, mirroring closeRecorder's drain-then-free sequence.
func (m *Muxer) Close() error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if m.vEncCtx != nil {
		if err := m.vEncCtx.SendFrame(nil); err == nil {
			note(m.drainVideoPackets())
		}
	}
	if m.aEncCtx != nil {
		if err := m.aEncCtx.SendFrame(nil); err == nil {
			note(m.drainAudioPackets())
		}
	}
	if m.oc != nil {
		note(m.oc.WriteTrailer())
	}

	if m.vFrame != nil {
		m.vFrame.Free()
	}
	if m.aFrame != nil {
		m.aFrame.Free()
	}
	if m.pkt != nil {
		m.pkt.Free()
	}
	if m.vEncCtx != nil {
		m.vEncCtx.Free()
	}
	if m.aEncCtx != nil {
		m.aEncCtx.Free()
	}
	if m.pb != nil {
		_ = m.pb.Close()
		m.pb.Free()
	}
	if m.oc != nil {
		m.oc.Free()
	}
	return firstErr
}
