// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nwb

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/OpenPSG/nwb/container"
)

// Source replays the continuous series of a container as a ring: positions
// wrap modulo the length of the active stream. A Source is meant to be
// driven from a single playback goroutine.
type Source struct {
	f        container.File
	ownsFile bool
	index    *Index
	logger   *slog.Logger

	active int // Index of the active stream, -1 if none
	data   container.Dataset
	pos    int64
}

var countsPool = sync.Pool{
	New: func() any { return new([]int16) },
}

// Open scans the container and selects its first stream, if any.
func Open(f container.File, opts ...Option) (*Source, error) {
	o := newOptions(opts)

	index, err := Discover(f, o.logger)
	if err != nil {
		return nil, err
	}

	s := &Source{
		f:      f,
		index:  index,
		logger: o.logger,
		active: -1,
	}
	if len(index.Streams) > 0 {
		if err := s.SelectStream(0); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Index returns the scan result.
func (s *Source) Index() *Index {
	return s.index
}

// Streams returns the playable continuous series.
func (s *Source) Streams() []StreamInfo {
	return s.index.Streams
}

// Stream returns the active stream.
func (s *Source) Stream() (StreamInfo, error) {
	if s.active < 0 {
		return StreamInfo{}, ErrNoStream
	}
	return s.index.Streams[s.active], nil
}

// SelectStream makes a stream active and rewinds to its first sample.
func (s *Source) SelectStream(i int) error {
	if i < 0 || i >= len(s.index.Streams) {
		return fmt.Errorf("%w: %d of %d", ErrStreamIndexOutOfRange, i, len(s.index.Streams))
	}

	info := s.index.Streams[i]
	data, err := s.f.OpenDataset(datasetPath(info.Name, dsData))
	if err != nil {
		return fmt.Errorf("error opening stream %s: %w", info.Name, err)
	}

	s.active = i
	s.data = data
	s.pos = 0
	s.logger.Debug("stream selected", "stream", info.Name, "samples", info.NumSamples, "rate", info.SampleRate)
	return nil
}

// Position returns the sample position within the active stream.
func (s *Source) Position() int64 {
	return s.pos
}

// Seek moves to a sample position, wrapped modulo the stream length.
func (s *Source) Seek(sample int64) error {
	info, err := s.Stream()
	if err != nil {
		return err
	}
	if info.NumSamples == 0 {
		return fmt.Errorf("%w: stream %s has no samples", ErrSeekOutOfRange, info.Name)
	}

	s.pos = sample % info.NumSamples
	if s.pos < 0 {
		s.pos += info.NumSamples
	}
	return nil
}

// ReadWindow reads up to n samples of every channel into dst, interleaved
// sample by sample, in microvolts. A read never crosses the end of the
// stream: at the tail it returns fewer samples and the caller seeks to
// continue into the next loop. dst must hold n × channels values; a shorter
// dst limits the read.
func (s *Source) ReadWindow(dst []float32, n int) (int, error) {
	info, err := s.Stream()
	if err != nil {
		return 0, err
	}
	channels := len(info.Channels)
	if channels == 0 || n <= 0 {
		return 0, nil
	}

	count := min(int64(n), info.NumSamples-s.pos, int64(len(dst)/channels))
	if count <= 0 {
		return 0, nil
	}

	values := int(count) * channels
	buf := countsPool.Get().(*[]int16)
	defer countsPool.Put(buf)
	if cap(*buf) < values {
		*buf = make([]int16, values)
	}
	raw := (*buf)[:values]
	if err := s.data.ReadAt([]int64{s.pos, 0}, []int64{count, int64(channels)}, raw); err != nil {
		return 0, fmt.Errorf("error reading samples of %s: %w", info.Name, err)
	}

	for i, v := range raw {
		dst[i] = float32(float64(v) * info.Channels[i%channels].BitVolts)
	}

	s.pos += count
	return int(count), nil
}

// Close releases the Source. The container is closed only if the Source opened it.
func (s *Source) Close() error {
	s.data = nil
	s.active = -1
	if s.ownsFile {
		if err := s.f.Close(); err != nil {
			return fmt.Errorf("error closing container: %w", err)
		}
	}
	return nil
}
