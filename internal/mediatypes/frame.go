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

// Package mediatypes holds the plain-data frame representations that flow
// between the mixer components. Decoders and the muxer convert to and from
// astiav.Frame at the package boundary; everything in between works on
// tightly packed Go slices, the same shape video.go's bgraScaler hands back
// from ScaleFrame instead of passing astiav.Frame deeper into the pipeline.
package mediatypes

// Kind distinguishes the two media types carried through the mixer.
type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// VideoFrame is one constant-rate output tick: a full image plus its
// presentation time in milliseconds since session start.
type VideoFrame struct {
	PTSMs  int64
	Width  int
	Height int
	// Pixels is tightly packed YUV420P: Y plane, then U, then V.
	Pixels []byte
}

// Clone returns a deep copy so the video buffer can hand out the same
// latest frame to many output ticks without aliasing.
func (f *VideoFrame) Clone() *VideoFrame {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Pixels = append([]byte(nil), f.Pixels...)
	return &cp
}

// AudioFrame is a run of planar PCM samples.
//
// Samples holds one []float32 slice per channel. SampleCount is the
// number of samples per channel.
type AudioFrame struct {
	PTSMs       int64
	SampleRate  int
	Channels    int
	SampleCount int
	Samples     [][]float32
}

// DurationMs is the number of whole milliseconds this frame spans.
func (f *AudioFrame) DurationMs() int64 {
	if f.SampleRate == 0 {
		return 0
	}
	return int64(f.SampleCount) * 1000 / int64(f.SampleRate)
}

// OutputAudioFrame is a fixed-size, codec-ready frame on the stream-sample
// timeline (as opposed to the millisecond timeline the mixer works in).
type OutputAudioFrame struct {
	PTSStream   int64
	SampleRate  int
	Channels    int
	SampleCount int
	Samples     [][]float32
}
