// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"flag"
	"fmt"
	"math"

	"github.com/OpenPSG/nwb"
	"github.com/OpenPSG/nwb/container/sqlite"
	"github.com/OpenPSG/nwb/internal/config"
)

// adcBitVolts spreads ±10 V over the int16 range.
const adcBitVolts = 20e6 / 65536

func (e *env) cmdSynth(args []string) error {
	s := e.cfg.Synth
	path, err := commandFlags("synth", args, func(fs *flag.FlagSet) {
		fs.IntVar(&s.Channels, "channels", s.Channels, "number of probe channels")
		fs.Float64Var(&s.Seconds, "seconds", s.Seconds, "recording length in seconds")
		fs.Float64Var(&s.SampleRate, "rate", s.SampleRate, "sample rate in Hz")
	})
	if err != nil {
		return err
	}
	if s.Channels <= 0 || !(s.Seconds > 0) || !(s.SampleRate > 0) {
		return fmt.Errorf("channels, seconds and rate must be positive")
	}

	layout, err := nwb.Plan(synthTopology(s))
	if err != nil {
		return fmt.Errorf("error planning layout: %w", err)
	}

	f, err := sqlite.Create(path, sqlite.WithChunkBytes(int64(e.cfg.Container.ChunkBytes)))
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer f.Close()

	r, err := nwb.Create(f, layout,
		nwb.WithLogger(e.logger),
		nwb.WithSessionDescription(s.Description))
	if err != nil {
		return err
	}

	total := int64(math.Round(s.Seconds * s.SampleRate))
	if err := synthesize(r, s, total); err != nil {
		r.Close()
		return err
	}
	if err := r.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}

	heading.Fprintf(e.out, "%s\n", path)
	fmt.Fprintf(e.out, "  %d channels × %d samples at %g Hz\n", s.Channels, total, s.SampleRate)
	return nil
}

// synthTopology lays out a probe stream, a single channel ADC stream
// mirroring the TTL line, a tetrode over the first probe channels and one
// TTL source on the probe stream.
func synthTopology(s config.SynthConfig) nwb.Topology {
	var t nwb.Topology
	for i := 0; i < s.Channels; i++ {
		t.Channels = append(t.Channels, nwb.Channel{
			Name:        fmt.Sprintf("CH%d", i+1),
			StreamName:  "probe",
			SourceID:    100,
			StreamID:    0,
			LocalIndex:  i,
			GlobalIndex: i,
			BitVolts:    s.BitVolts,
			SampleRate:  s.SampleRate,
		})
	}
	t.Channels = append(t.Channels, nwb.Channel{
		Name:        "ADC1",
		StreamName:  "adc",
		SourceID:    100,
		StreamID:    1,
		GlobalIndex: s.Channels,
		BitVolts:    adcBitVolts,
		SampleRate:  s.SampleRate,
		Type:        nwb.ChannelADC,
	})

	if s.SpikeSamples > 0 {
		t.Electrodes = append(t.Electrodes, nwb.Electrode{
			Name:              "tetrode",
			Channels:          t.Channels[:min(4, s.Channels)],
			SamplesPerChannel: s.SpikeSamples,
		})
	}
	t.Events = append(t.Events, nwb.EventChannel{Name: "TTL", SourceID: 100, StreamID: 0})
	return t
}

// synthesize writes total samples of phase shifted sines. The TTL line
// toggles every TTL period, the ADC channel follows it at 5 V and every
// rising edge carries a spike on the tetrode.
func synthesize(r *nwb.Recorder, s config.SynthConfig, total int64) error {
	period := int64(math.Round(s.TTLPeriod * s.SampleRate))
	adc := s.Channels
	hasSpikes := len(r.Layout().Electrodes) > 0

	var waveform []float32
	if hasSpikes {
		waveform = spikeWaveform(len(r.Layout().Electrodes[0].Channels), s.SpikeSamples, s.AmplitudeUV)
	}

	buf := make([]float32, s.BlockSize)
	for start := int64(0); start < total; start += int64(s.BlockSize) {
		n := int(min(int64(s.BlockSize), total-start))
		block := buf[:n]

		for ch := 0; ch < s.Channels; ch++ {
			phase := float64(ch) * math.Pi / 8
			for i := range block {
				t := float64(start+int64(i)) / s.SampleRate
				block[i] = float32(s.AmplitudeUV * math.Sin(2*math.Pi*s.FrequencyHz*t+phase))
			}
			if err := r.WriteBlock(ch, block, start); err != nil {
				return err
			}
		}

		for i := range block {
			block[i] = 0
			if period > 0 && ((start+int64(i))/period)%2 == 1 {
				block[i] = 5e6
			}
		}
		if err := r.WriteBlock(adc, block, start); err != nil {
			return err
		}

		if period <= 0 {
			continue
		}
		first := (start + period - 1) / period
		for k := max(first, 1); k*period < start+int64(n); k++ {
			sample := k * period
			rising := k%2 == 1
			if err := r.WriteEvent(0, 1, rising, sample); err != nil {
				return err
			}
			if rising && hasSpikes {
				if err := r.WriteSpike(0, waveform, sample, float64(sample)/s.SampleRate); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// spikeWaveform returns a negative going bump per channel, channel major,
// shrinking with channel distance.
func spikeWaveform(channels, samples int, amplitude float64) []float32 {
	out := make([]float32, channels*samples)
	peak := float64(samples) / 4
	width := math.Max(float64(samples)/16, 1)
	for c := 0; c < channels; c++ {
		gain := -2 * amplitude / float64(c+1)
		for j := 0; j < samples; j++ {
			d := (float64(j) - peak) / width
			out[c*samples+j] = float32(gain * math.Exp(-d*d/2))
		}
	}
	return out
}
