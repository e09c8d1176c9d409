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
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/OpenPSG/nwb/container"
	"github.com/google/uuid"
)

// Recorder writes one recording session into a container.
type Recorder struct {
	f          container.File
	ownsFile   bool
	layout     *Layout
	logger     *slog.Logger
	groups     []*groupWriter
	electrodes []*spikeWriter
	events     []*eventWriter

	mu     sync.RWMutex
	closed bool
}

// Create lays out the container for a recording session and returns a
// Recorder writing into it. The container stays owned by the caller.
func Create(f container.File, layout *Layout, opts ...Option) (*Recorder, error) {
	o := newOptions(opts)
	if o.identifier == "" {
		o.identifier = uuid.NewString()
	}

	r := &Recorder{
		f:      f,
		layout: layout,
		logger: o.logger,
	}

	if err := r.writeRoot(o); err != nil {
		return nil, fmt.Errorf("error writing root metadata: %w", err)
	}

	for i := range layout.Groups {
		g, err := newGroupWriter(f, &layout.Groups[i], o.flushRows)
		if err != nil {
			return nil, fmt.Errorf("error creating series %s: %w", layout.Groups[i].Name, err)
		}
		r.groups = append(r.groups, g)
	}
	for i := range layout.Electrodes {
		s, err := newSpikeWriter(f, &layout.Electrodes[i])
		if err != nil {
			return nil, fmt.Errorf("error creating series %s: %w", layout.Electrodes[i].Name, err)
		}
		r.electrodes = append(r.electrodes, s)
	}
	for i := range layout.Events {
		var source string
		if g := layout.Events[i].Group; g >= 0 {
			source = layout.Groups[g].Name
		}
		e, err := newEventWriter(f, &layout.Events[i], source)
		if err != nil {
			return nil, fmt.Errorf("error creating series %s: %w", layout.Events[i].Name, err)
		}
		r.events = append(r.events, e)
	}

	r.logger.Info("recording started",
		"identifier", o.identifier,
		"groups", len(r.groups),
		"electrodes", len(r.electrodes),
		"events", len(r.events))

	return r, nil
}

func (r *Recorder) writeRoot(o *options) error {
	attrs := []struct {
		name  string
		value any
	}{
		{attrIdentifier, o.identifier},
		{attrNWBVersion, nwbVersion},
		{attrSessionStart, o.startTime.UTC().Format(time.RFC3339Nano)},
		{attrSessionDesc, o.description},
	}
	for _, a := range attrs {
		if err := r.f.SetAttr("/", a.name, a.value); err != nil {
			return err
		}
	}
	return r.f.CreateGroup(acquisitionPath)
}

// Layout returns the write topology of the session.
func (r *Recorder) Layout() *Layout {
	return r.layout
}

// WriteBlock appends a block of physical samples (microvolts) for one
// continuous channel. firstSampleNumber is the absolute acquisition sample
// number of samples[0]. The first channel of each group also records the
// group's shared timestamps and sync sample numbers.
//
// Rows are buffered per group and written once every channel of the group
// has reached them, in runs of the flush size (see WithFlushRows). A channel
// that stops writing holds its group back in memory. Flush and Close write
// out what is pending.
func (r *Recorder) WriteBlock(channel int, samples []float32, firstSampleNumber int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}
	if channel < 0 || channel >= len(r.layout.Placements) {
		return fmt.Errorf("%w: continuous channel %d", ErrChannelOutOfRange, channel)
	}

	p := r.layout.Placements[channel]
	return r.groups[p.Group].write(p.Offset, samples, firstSampleNumber)
}

// Close ends the session. The container is closed only if the Recorder opened it.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, g := range r.groups {
		g.mu.Lock()
		// Rows not every channel reached keep zeros in the missing columns.
		err := g.flush(slices.Max(g.positions))
		g.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.logger.Info("series closed", "series", g.group.Name, "samples", g.positions[0])
	}

	if r.ownsFile {
		if err := r.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing container: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Flush writes every buffered row that all channels of its group have reached.
func (r *Recorder) Flush() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}
	for _, g := range r.groups {
		g.mu.Lock()
		err := g.flush(g.low())
		g.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// groupWriter owns the datasets of one continuous group. Its mutex
// serializes every write touching the group.
type groupWriter struct {
	mu         sync.Mutex
	group      *Group
	data       container.Dataset
	timestamps container.Dataset
	sync       container.Dataset
	positions  []int64       // Append position per column
	blocks     map[int64]int // Block size by start position, until every column has passed it

	// Pending rows from base up to the furthest column position.
	flushRows int64
	base      int64
	rows      []int16 // Row-major, one column per channel
	times     []float64
	samples   []int64
}

func newGroupWriter(f container.File, g *Group, flushRows int64) (*groupWriter, error) {
	base := seriesPath(g.Name)
	n := int64(len(g.Channels))

	if err := f.CreateGroup(base); err != nil {
		return nil, err
	}
	if err := setAttrs(f, base, map[string]any{
		attrNeurodataType: typeElectricalSeries,
		attrDescription:   fmt.Sprintf("source %d stream %d", g.SourceID, g.StreamID),
	}); err != nil {
		return nil, err
	}

	data, err := f.CreateDataset(datasetPath(g.Name, dsData), container.Int16, []int64{0, n})
	if err != nil {
		return nil, err
	}
	if err := setAttrs(f, data.Path(), map[string]any{
		attrConversion: bitVoltsToConversion(g.Channels[0].BitVolts),
		attrResolution: -1.0,
		attrUnit:       "volts",
	}); err != nil {
		return nil, err
	}

	timestamps, err := f.CreateDataset(datasetPath(g.Name, dsTimestamps), container.Float64, []int64{0})
	if err != nil {
		return nil, err
	}
	if err := setAttrs(f, timestamps.Path(), map[string]any{
		attrInterval: 1 / g.SampleRate,
		attrUnit:     "seconds",
	}); err != nil {
		return nil, err
	}

	syncs, err := f.CreateDataset(datasetPath(g.Name, dsSync), container.Int64, []int64{0})
	if err != nil {
		return nil, err
	}

	conversions := make([]float64, n)
	types := make([]uint8, n)
	electrodes := make([]int32, n)
	for i, ch := range g.Channels {
		conversions[i] = bitVoltsToConversion(ch.BitVolts)
		types[i] = uint8(ch.Type)
		electrodes[i] = int32(ch.GlobalIndex)
	}
	if err := writeColumnArray(f, datasetPath(g.Name, dsChannelConversion), container.Float64, conversions); err != nil {
		return nil, err
	}
	if err := writeColumnArray(f, datasetPath(g.Name, dsChannelType), container.Uint8, types); err != nil {
		return nil, err
	}
	if err := writeColumnArray(f, datasetPath(g.Name, dsElectrodes), container.Int32, electrodes); err != nil {
		return nil, err
	}

	return &groupWriter{
		group:      g,
		data:       data,
		timestamps: timestamps,
		sync:       syncs,
		positions:  make([]int64, n),
		blocks:     make(map[int64]int),
		flushRows:  max(flushRows, 1),
	}, nil
}

func (g *groupWriter) write(offset int, samples []float32, firstSampleNumber int64) error {
	size := len(samples)
	if size == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ch := g.group.Channels[offset]
	pos := g.positions[offset]
	if want, ok := g.blocks[pos]; ok && want != size {
		return fmt.Errorf("%w: channel %s wrote %d samples at position %d of %s, group block has %d",
			ErrGroupSizeMismatch, ch.Name, size, pos, g.group.Name, want)
	}

	g.reserve(pos + int64(size))
	columns := len(g.group.Channels)
	row := int(pos - g.base)
	for i, x := range samples {
		g.rows[(row+i)*columns+offset] = toFixedPoint(float64(x), ch.BitVolts)
	}

	// The leader records the shared arrays once per block.
	if offset == 0 {
		for i := 0; i < size; i++ {
			sampleNumber := firstSampleNumber + int64(i)
			g.samples[row+i] = sampleNumber
			g.times[row+i] = float64(sampleNumber) / g.group.SampleRate
		}
	}

	if _, ok := g.blocks[pos]; !ok {
		g.blocks[pos] = size
	}
	g.positions[offset] = pos + int64(size)
	g.pruneBlocks()

	// Runs stay multiples of the flush size so they line up with store chunks.
	if runs := (g.low() - g.base) / g.flushRows; runs > 0 {
		return g.flush(g.base + runs*g.flushRows)
	}
	return nil
}

// reserve extends the pending buffers to hold rows up to end.
func (g *groupWriter) reserve(end int64) {
	have := int64(len(g.times))
	need := end - g.base
	if need <= have {
		return
	}
	extra := int(need - have)
	g.rows = append(g.rows, make([]int16, extra*len(g.group.Channels))...)
	g.times = append(g.times, make([]float64, extra)...)
	g.samples = append(g.samples, make([]int64, extra)...)
}

// flush writes the pending rows below end and drops them from the buffers.
// Timestamps and sync only cover rows the leader has reached.
func (g *groupWriter) flush(end int64) error {
	n := min(end-g.base, int64(len(g.times)))
	if n <= 0 {
		return nil
	}
	columns := int64(len(g.group.Channels))

	if err := g.data.WriteAt([]int64{g.base, 0}, []int64{n, columns}, g.rows[:n*columns]); err != nil {
		return fmt.Errorf("error writing samples of %s: %w", g.group.Name, err)
	}
	if lead := min(n, g.positions[0]-g.base); lead > 0 {
		if err := g.timestamps.WriteAt([]int64{g.base}, []int64{lead}, g.times[:lead]); err != nil {
			return fmt.Errorf("error writing timestamps of %s: %w", g.group.Name, err)
		}
		if err := g.sync.WriteAt([]int64{g.base}, []int64{lead}, g.samples[:lead]); err != nil {
			return fmt.Errorf("error writing sample numbers of %s: %w", g.group.Name, err)
		}
	}

	g.rows = append(g.rows[:0], g.rows[n*columns:]...)
	g.times = append(g.times[:0], g.times[n:]...)
	g.samples = append(g.samples[:0], g.samples[n:]...)
	g.base += n
	return nil
}

// low is the position every column has reached.
func (g *groupWriter) low() int64 {
	return slices.Min(g.positions)
}

// pruneBlocks forgets blocks every column has moved past.
func (g *groupWriter) pruneBlocks() {
	low := g.low()
	for start := range g.blocks {
		if start < low {
			delete(g.blocks, start)
		}
	}
}

func setAttrs(f container.File, path string, attrs map[string]any) error {
	for name, value := range attrs {
		if err := f.SetAttr(path, name, value); err != nil {
			return fmt.Errorf("error setting %s@%s: %w", path, name, err)
		}
	}
	return nil
}

func writeColumnArray(f container.File, path string, dtype container.DType, values any) error {
	n, err := container.Len(values)
	if err != nil {
		return err
	}
	ds, err := f.CreateDataset(path, dtype, []int64{0})
	if err != nil {
		return err
	}
	return ds.WriteAt([]int64{0}, []int64{int64(n)}, values)
}
