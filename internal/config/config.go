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

// Package config loads the mixer's tunables from a YAML file next to the
// binary's usual config directory, the same loadConfig/SaveConfig/atomic
// rename-on-write shape config.go uses for QAnotherRTSP's camera settings.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// AppConfig is the on-disk mixer configuration.
type AppConfig struct {
	// MinBufferMS is how many milliseconds of audio the mixer keeps
	// buffered before draining into the FIFO, absorbing late arrivals
	// across sources with independent clocks.
	MinBufferMS int64 `yaml:"min_buffer_ms"`
	// VideoFPSOut is the constant output frame rate.
	VideoFPSOut int `yaml:"video_fps_out"`
	// AudioRateOut is the output sample rate in Hz.
	AudioRateOut int `yaml:"audio_rate_out"`
	// AudioChannels is the output channel count.
	AudioChannels int `yaml:"audio_channels"`
	// AudioFrameSize is the codec-required sample count per output frame
	// (1024 for AAC).
	AudioFrameSize int `yaml:"audio_frame_size"`
	// CaptureDelayMS replaces the original's hard-coded
	// `source_ts_offset -= 1000`; the correct value is host-dependent,
	// so it defaults to 0 and is meant to be tuned per deployment.
	CaptureDelayMS int64 `yaml:"capture_delay_ms,omitempty"`

	// ScreencastSubject and BlobsinkSubject are the two NATS subjects the
	// transport package pulls from.
	ScreencastSubject string `yaml:"screencast_subject"`
	BlobsinkSubject   string `yaml:"blobsink_subject"`
	NATSUrl           string `yaml:"nats_url"`

	// EnableLocalCapture turns on the portaudio-backed local audio source.
	EnableLocalCapture bool `yaml:"enable_local_capture,omitempty"`

	// Output is a file path, or an rtmp:// URL to stream instead of
	// writing to disk.
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present yet.
func Default() AppConfig {
	return AppConfig{
		MinBufferMS:       2000,
		VideoFPSOut:       30,
		AudioRateOut:      48000,
		AudioChannels:     2,
		AudioFrameSize:    1024,
		CaptureDelayMS:    0,
		ScreencastSubject: "ichabod.screencast",
		BlobsinkSubject:   "ichabod.blobsink",
		NATSUrl:           "nats://127.0.0.1:4222",
		Output:            "out.mp4",
	}
}

// Load reads and parses a YAML config file. If the file does not exist, a
// default configuration is written to path first and returned (modeled on
// loadConfig's caller in the teacher's main.go falling back to SaveConfig).
// A file that exists but cannot be read or parsed is returned as an error,
// not replaced.
func Load(path string) (AppConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if werr := Save(path, cfg); werr != nil {
				return cfg, werr
			}
			return cfg, nil
		}
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically (write to a temp file, then rename).
func Save(path string, cfg AppConfig) error {
	if dir := filepath.Dir(path); dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(&cfg); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// DefaultPath returns ~/.config/archivemixer/settings.yml, matching the
// teacher's ~/.config/<appName>/settings.yml layout.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "settings.yml"
	}
	return filepath.Join(home, ".config", "archivemixer", "settings.yml")
}
