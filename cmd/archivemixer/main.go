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
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/archivemixer/internal/archivemixer"
	"github.com/e1z0/archivemixer/internal/capture"
	"github.com/e1z0/archivemixer/internal/config"
	"github.com/e1z0/archivemixer/internal/controlloop"
	"github.com/e1z0/archivemixer/internal/imagedecode"
	"github.com/e1z0/archivemixer/internal/mediatypes"
	"github.com/e1z0/archivemixer/internal/muxer"
	"github.com/e1z0/archivemixer/internal/transport"
)

var version string
var build string

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to settings.yml")
	output := flag.String("o", "", "Output file path or rtmp:// URL (overrides config)")
	flag.StringVar(output, "output", "", "Same as -o")
	minBuffer := flag.Int64("minbuffer", 0, "Audio min-buffer milliseconds (overrides config, 0 = use config)")
	fps := flag.Int("fps", 0, "Output video frame rate (overrides config, 0 = use config)")
	debugStreams := flag.Bool("debugstreams", false, "Bridge FFmpeg's own logging to the Go log")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("Running archivemixer v%s (build: %s)", version, build)

	if *debugStreams {
		astiav.SetLogLevel(astiav.LogLevelDebug)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt, msg string) {
			var cs string
			if c != nil {
				if cl := c.Class(); cl != nil {
					cs = " - class: " + cl.String()
				}
			}
			log.Printf("ffmpeg log: %s%s - level: %d\n", strings.TrimSpace(msg), cs, l)
		})
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *minBuffer > 0 {
		cfg.MinBufferMS = *minBuffer
	}
	if *fps > 0 {
		cfg.VideoFPSOut = *fps
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tc, err := transport.Connect(ctx, transport.Config{
		URL:               cfg.NATSUrl,
		ScreencastSubject: cfg.ScreencastSubject,
		BlobsinkSubject:   cfg.BlobsinkSubject,
	})
	if err != nil {
		log.Fatalf("transport: %v", err)
	}
	defer tc.Close()

	decodePool := imagedecode.NewPool(0)
	defer decodePool.Close()

	mixer := archivemixer.New(archivemixer.Config{
		MinBufferMS:    cfg.MinBufferMS,
		VideoFPSOut:    cfg.VideoFPSOut,
		VideoTimeBase:  1000,
		AudioRateOut:   cfg.AudioRateOut,
		AudioChannels:  cfg.AudioChannels,
		AudioFrameSize: cfg.AudioFrameSize,
		CaptureDelayMS: cfg.CaptureDelayMS,
	})
	defer mixer.Close()

	var cap *capture.Capture
	if cfg.EnableLocalCapture {
		cap = capture.New(capture.Config{
			SampleRate: cfg.AudioRateOut,
			Channels:   cfg.AudioChannels,
			OnAudioData: func() {
				mixer.DrainCapture(cap.Next)
			},
		})
		if err := cap.Start(time.Now().UnixMilli()); err != nil {
			log.Printf("capture: %v, continuing without local audio", err)
			cap = nil
		} else {
			defer cap.Stop()
		}
	}

	mx, err := muxer.New(cfg.Output, muxer.Config{
		Width:           1280,
		Height:          720,
		FPS:             cfg.VideoFPSOut,
		AudioSampleRate: cfg.AudioRateOut,
		AudioChannels:   cfg.AudioChannels,
	})
	if err != nil {
		log.Fatalf("muxer: %v", err)
	}
	defer func() {
		if err := mx.Close(); err != nil {
			log.Printf("muxer: close: %v", err)
		}
	}()

	go pollScreencast(tc, decodePool, mixer)
	go pollBlobsink(tc, mixer)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	loop := controlloop.New(controlloop.DefaultConfig())
	go func() {
		<-sigCh
		log.Printf("archivemixer: shutting down")
		mixer.Interrupt()
		loop.Interrupt()
	}()

	loop.Run(mixer, func(video *mediatypes.VideoFrame, audio *mediatypes.OutputAudioFrame, kind mediatypes.Kind) {
		var err error
		switch kind {
		case mediatypes.KindVideo:
			err = mx.WriteVideo(video)
		case mediatypes.KindAudio:
			err = mx.WriteAudio(audio)
		}
		if err != nil {
			log.Printf("archivemixer: write %s: %v", kind, err)
		}
	})

	log.Printf("archivemixer: drained %d frames, exiting", loop.Emitted())
}

// pollScreencast repeatedly pulls screencast messages, decodes each PNG on
// the image-decode pool, and feeds the result into the mixer's video input.
func pollScreencast(tc *transport.Client, pool *imagedecode.Pool, mixer *archivemixer.Mixer) {
	for {
		msg, ok, err := tc.PollScreencast()
		if err != nil {
			log.Printf("transport: screencast poll: %v", err)
			continue
		}
		if !ok {
			continue
		}
		png, err := msg.DecodeFrameBytes()
		if err != nil {
			log.Printf("transport: screencast payload: %v", err)
			continue
		}
		// The producer's timestamp is in float seconds.
		tsMs := int64(msg.Timestamp * 1000)
		res := <-pool.Submit(png, tsMs)
		if res.Err != nil {
			log.Printf("imagedecode: %v", res.Err)
			continue
		}
		mixer.ConsumeVideo(res.Frame, tsMs)
	}
}

// pollBlobsink repeatedly pulls blobsink messages and hands each subscriber's
// growing audio file path to the mixer.
func pollBlobsink(tc *transport.Client, mixer *archivemixer.Mixer) {
	for {
		msg, ok, err := tc.PollBlobsink()
		if err != nil {
			log.Printf("transport: blobsink poll: %v", err)
			continue
		}
		if !ok {
			continue
		}
		mixer.ConsumeAudio(msg.Path, int64(msg.Timestamp*1000), msg.SubscriberID)
	}
}
