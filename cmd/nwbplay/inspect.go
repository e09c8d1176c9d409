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
	"strings"

	"github.com/OpenPSG/nwb"
)

func (e *env) open(path string, stream int) (*nwb.Source, error) {
	s, err := nwb.OpenFile(path, nwb.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	if stream != 0 {
		if err := s.SelectStream(stream); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (e *env) cmdInfo(args []string) error {
	path, err := commandFlags("info", args, nil)
	if err != nil {
		return err
	}
	s, err := e.open(path, 0)
	if err != nil {
		return err
	}
	defer s.Close()

	ix := s.Index()
	heading.Fprintf(e.out, "%s\n", path)
	fmt.Fprintf(e.out, "  identifier: %s\n", ix.Identifier)

	heading.Fprintln(e.out, "Streams:")
	if len(ix.Streams) == 0 {
		fmt.Fprintln(e.out, "  none")
	}
	for i, st := range ix.Streams {
		rate := fmt.Sprintf("%.6g Hz", st.SampleRate)
		if st.SampleRate == nwb.UnknownSampleRate {
			rate = warning.Sprint("unknown rate")
		}
		fmt.Fprintf(e.out, "  [%d] %s: %d channels, %d samples, %s, base sample %d, %d events\n",
			i, st.Name, len(st.Channels), st.NumSamples, rate, st.BaseSampleNumber, len(ix.Events(st.Name)))
	}

	if len(ix.Spikes) > 0 {
		heading.Fprintln(e.out, "Spikes:")
		for _, sp := range ix.Spikes {
			fmt.Fprintf(e.out, "  %s: %d spikes, %d channels × %d samples\n",
				sp.Name, sp.NumSpikes, sp.NumChannels, sp.SamplesPerChannel)
		}
	}

	if len(ix.Skipped) > 0 {
		warning.Fprintf(e.out, "Skipped: %s\n", strings.Join(ix.Skipped, ", "))
	}
	return nil
}

func (e *env) cmdRead(args []string) error {
	var stream int
	var seek, count int64
	path, err := commandFlags("read", args, func(fs *flag.FlagSet) {
		fs.IntVar(&stream, "stream", 0, "stream index")
		fs.Int64Var(&seek, "seek", 0, "first sample, wrapped to the stream length")
		fs.Int64Var(&count, "samples", 10, "number of samples to print")
	})
	if err != nil {
		return err
	}
	s, err := e.open(path, stream)
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.Stream()
	if err != nil {
		return err
	}
	if err := s.Seek(seek); err != nil {
		return err
	}

	channels := len(info.Channels)
	if channels == 0 {
		return fmt.Errorf("stream %s has no channels", info.Name)
	}
	window := e.cfg.Playback.WindowSamples
	buf := make([]float32, window*channels)

	// Sample numbers start at the wrapped position and keep counting across
	// loops.
	at := s.Position()
	for count > 0 {
		n, err := s.ReadWindow(buf, int(min(int64(window), count)))
		if err != nil {
			return err
		}
		if n == 0 {
			// Tail of the recording: loop back to the start.
			if err := s.Seek(0); err != nil {
				return err
			}
			continue
		}

		for i := 0; i < n; i++ {
			row := buf[i*channels : (i+1)*channels]
			fields := make([]string, len(row))
			for c, v := range row {
				fields[c] = fmt.Sprintf("%.3f", v)
			}
			fmt.Fprintf(e.out, "%d\t%s\n", at, strings.Join(fields, "\t"))
			at++
		}
		count -= int64(n)
	}
	return nil
}

func (e *env) cmdEvents(args []string) error {
	var stream int
	var start, stop int64
	path, err := commandFlags("events", args, func(fs *flag.FlagSet) {
		fs.IntVar(&stream, "stream", 0, "stream index")
		fs.Int64Var(&start, "start", 0, "first sample of the playback interval")
		fs.Int64Var(&stop, "stop", -1, "end of the playback interval, the recording length if negative")
	})
	if err != nil {
		return err
	}
	s, err := e.open(path, stream)
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.Stream()
	if err != nil {
		return err
	}
	if stop < 0 {
		stop = info.NumSamples
	}

	for _, ev := range s.EventsInWindow(start, stop) {
		edge := "falling"
		if ev.Rising {
			edge = "rising"
		}
		fmt.Fprintf(e.out, "%d\tline %d\t%s\n", ev.SampleNumber, ev.Channel, edge)
	}
	return nil
}
