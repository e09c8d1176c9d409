// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns ValidationErrors if any setting is invalid.
func (c *Config) Validate() error {
	var errs ValidationErrors
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateContainer(&c.Container)...)
	errs = append(errs, validateSynth(&c.Synth)...)
	errs = append(errs, validatePlayback(&c.Playback)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr)", l.Output),
		})
	}

	return errs
}

func validateContainer(c *ContainerConfig) ValidationErrors {
	if c.ChunkBytes <= 0 {
		return ValidationErrors{{
			Field:   "container.chunk_bytes",
			Message: fmt.Sprintf("must be positive, got %d", c.ChunkBytes),
		}}
	}
	return nil
}

func validateSynth(s *SynthConfig) ValidationErrors {
	var errs ValidationErrors
	positive := func(field string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			errs = append(errs, ValidationError{
				Field:   "synth." + field,
				Message: fmt.Sprintf("must be a positive number, got %v", v),
			})
		}
	}

	positive("channels", float64(s.Channels))
	positive("sample_rate", s.SampleRate)
	positive("bit_volts", s.BitVolts)
	positive("seconds", s.Seconds)
	positive("block_size", float64(s.BlockSize))

	if s.TTLPeriod < 0 {
		errs = append(errs, ValidationError{
			Field:   "synth.ttl_period",
			Message: fmt.Sprintf("must not be negative, got %v", s.TTLPeriod),
		})
	}
	if s.SpikeSamples < 0 {
		errs = append(errs, ValidationError{
			Field:   "synth.spike_samples",
			Message: fmt.Sprintf("must not be negative, got %d", s.SpikeSamples),
		})
	}

	return errs
}

func validatePlayback(p *PlaybackConfig) ValidationErrors {
	if p.WindowSamples <= 0 {
		return ValidationErrors{{
			Field:   "playback.window_samples",
			Message: fmt.Sprintf("must be positive, got %d", p.WindowSamples),
		}}
	}
	return nil
}
