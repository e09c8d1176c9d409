// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config holds the settings of the nwbplay command.
package config

import (
	"github.com/OpenPSG/nwb/container/sqlite"
)

// Config is the nwbplay configuration.
type Config struct {
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Container ContainerConfig `toml:"container" yaml:"container"`
	Synth     SynthConfig     `toml:"synth" yaml:"synth"`
	Playback  PlaybackConfig  `toml:"playback" yaml:"playback"`
}

// LoggingConfig selects the log level, format and destination.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // text, json
	Output string `toml:"output" yaml:"output"` // stdout, stderr
}

// ContainerConfig tunes files created by nwbplay.
type ContainerConfig struct {
	ChunkBytes int `toml:"chunk_bytes" yaml:"chunk_bytes"`
}

// SynthConfig describes the synthetic recording written by "nwbplay synth".
type SynthConfig struct {
	Channels     int     `toml:"channels" yaml:"channels"`
	SampleRate   float64 `toml:"sample_rate" yaml:"sample_rate"`
	BitVolts     float64 `toml:"bit_volts" yaml:"bit_volts"`
	Seconds      float64 `toml:"seconds" yaml:"seconds"`
	BlockSize    int     `toml:"block_size" yaml:"block_size"`
	AmplitudeUV  float64 `toml:"amplitude_uv" yaml:"amplitude_uv"`
	FrequencyHz  float64 `toml:"frequency_hz" yaml:"frequency_hz"`
	TTLPeriod    float64 `toml:"ttl_period" yaml:"ttl_period"` // Seconds between TTL edges, 0 disables
	SpikeSamples int     `toml:"spike_samples" yaml:"spike_samples"`
	Description  string  `toml:"description" yaml:"description"`
}

// PlaybackConfig controls "nwbplay read".
type PlaybackConfig struct {
	WindowSamples int `toml:"window_samples" yaml:"window_samples"`
}

// DefaultConfig returns the built in configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Container: ContainerConfig{
			ChunkBytes: sqlite.DefaultChunkBytes,
		},
		Synth: SynthConfig{
			Channels:     8,
			SampleRate:   30000,
			BitVolts:     0.195,
			Seconds:      2,
			BlockSize:    1024,
			AmplitudeUV:  200,
			FrequencyHz:  10,
			TTLPeriod:    0.5,
			SpikeSamples: 40,
			Description:  "synthetic recording",
		},
		Playback: PlaybackConfig{
			WindowSamples: 1024,
		},
	}
}
