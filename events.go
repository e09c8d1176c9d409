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
	"sync"

	"github.com/OpenPSG/nwb/container"
)

// WriteEvent appends a TTL transition on a 1-based line of an event source.
// sampleNumber is the absolute acquisition sample number of the edge.
func (r *Recorder) WriteEvent(eventChannel, line int, rising bool, sampleNumber int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}
	if eventChannel < 0 || eventChannel >= len(r.events) {
		return fmt.Errorf("%w: event channel %d", ErrChannelOutOfRange, eventChannel)
	}
	if line < 1 {
		return fmt.Errorf("%w: TTL line %d", ErrChannelOutOfRange, line)
	}

	code := int32(line)
	if !rising {
		code = -code
	}
	return r.events[eventChannel].append(code, sampleNumber)
}

// WriteSpike appends one waveform frame for an electrode. The waveform is
// channel-major, len(Channels) × SamplesPerChannel physical samples.
func (r *Recorder) WriteSpike(electrode int, waveform []float32, sampleNumber int64, timestamp float64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}
	if electrode < 0 || electrode >= len(r.electrodes) {
		return fmt.Errorf("%w: electrode %d", ErrChannelOutOfRange, electrode)
	}
	return r.electrodes[electrode].append(waveform, sampleNumber, timestamp)
}

// eventWriter owns the append-only log of one event source.
type eventWriter struct {
	mu         sync.Mutex
	group      *EventGroup
	data       container.Dataset
	timestamps container.Dataset
	sync       container.Dataset
	n          int64
}

func newEventWriter(f container.File, g *EventGroup, source string) (*eventWriter, error) {
	base := seriesPath(g.Name)
	if err := f.CreateGroup(base); err != nil {
		return nil, err
	}
	attrs := map[string]any{
		attrNeurodataType: typeTimeSeries,
		attrDescription:   "TTL events from " + g.Source.Name,
	}
	if source != "" {
		attrs[attrSourceSeries] = source
	}
	if err := setAttrs(f, base, attrs); err != nil {
		return nil, err
	}

	w := &eventWriter{group: g}
	var err error
	if w.data, err = f.CreateDataset(datasetPath(g.Name, dsData), container.Int32, []int64{0}); err != nil {
		return nil, err
	}
	if w.timestamps, err = f.CreateDataset(datasetPath(g.Name, dsTimestamps), container.Float64, []int64{0}); err != nil {
		return nil, err
	}
	if err := f.SetAttr(w.timestamps.Path(), attrUnit, "seconds"); err != nil {
		return nil, err
	}
	if w.sync, err = f.CreateDataset(datasetPath(g.Name, dsSync), container.Int64, []int64{0}); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *eventWriter) append(code int32, sampleNumber int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	at, one := []int64{w.n}, []int64{1}
	if err := w.data.WriteAt(at, one, []int32{code}); err != nil {
		return fmt.Errorf("error writing event of %s: %w", w.group.Name, err)
	}
	if err := w.timestamps.WriteAt(at, one, []float64{float64(sampleNumber) / w.group.SampleRate}); err != nil {
		return fmt.Errorf("error writing event timestamp of %s: %w", w.group.Name, err)
	}
	if err := w.sync.WriteAt(at, one, []int64{sampleNumber}); err != nil {
		return fmt.Errorf("error writing event sample number of %s: %w", w.group.Name, err)
	}
	w.n++
	return nil
}

// spikeWriter owns the append-only waveform log of one electrode.
type spikeWriter struct {
	mu         sync.Mutex
	group      *ElectrodeGroup
	data       container.Dataset
	timestamps container.Dataset
	sync       container.Dataset
	n          int64
	raw        []int16 // Frame scratch, reused under mu
}

func newSpikeWriter(f container.File, g *ElectrodeGroup) (*spikeWriter, error) {
	base := seriesPath(g.Name)
	channels := int64(len(g.Channels))

	if err := f.CreateGroup(base); err != nil {
		return nil, err
	}
	if err := setAttrs(f, base, map[string]any{
		attrNeurodataType:     typeSpikeEventSeries,
		attrDescription:       "spike waveforms of " + g.Name,
		attrSamplesPerChannel: g.SamplesPerChannel,
	}); err != nil {
		return nil, err
	}

	w := &spikeWriter{group: g}
	var err error
	if w.data, err = f.CreateDataset(datasetPath(g.Name, dsData), container.Int16, []int64{0, channels, int64(g.SamplesPerChannel)}); err != nil {
		return nil, err
	}
	if err := setAttrs(f, w.data.Path(), map[string]any{
		attrConversion: bitVoltsToConversion(g.BitVolts),
		attrUnit:       "volts",
	}); err != nil {
		return nil, err
	}
	if w.timestamps, err = f.CreateDataset(datasetPath(g.Name, dsTimestamps), container.Float64, []int64{0}); err != nil {
		return nil, err
	}
	if w.sync, err = f.CreateDataset(datasetPath(g.Name, dsSync), container.Int64, []int64{0}); err != nil {
		return nil, err
	}

	electrodes := make([]int32, channels)
	for i, ch := range g.Channels {
		electrodes[i] = int32(ch.GlobalIndex)
	}
	if err := writeColumnArray(f, datasetPath(g.Name, dsElectrodes), container.Int32, electrodes); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *spikeWriter) append(waveform []float32, sampleNumber int64, timestamp float64) error {
	channels := len(w.group.Channels)
	if len(waveform) != channels*w.group.SamplesPerChannel {
		return fmt.Errorf("%w: %d samples for %d channels of %d samples",
			ErrWaveformSize, len(waveform), channels, w.group.SamplesPerChannel)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.raw = convertBlock(w.raw, waveform, w.group.BitVolts)

	at, one := []int64{w.n}, []int64{1}
	err := w.data.WriteAt([]int64{w.n, 0, 0}, []int64{1, int64(channels), int64(w.group.SamplesPerChannel)}, w.raw)
	if err != nil {
		return fmt.Errorf("error writing spike of %s: %w", w.group.Name, err)
	}
	if err := w.timestamps.WriteAt(at, one, []float64{timestamp}); err != nil {
		return fmt.Errorf("error writing spike timestamp of %s: %w", w.group.Name, err)
	}
	if err := w.sync.WriteAt(at, one, []int64{sampleNumber}); err != nil {
		return fmt.Errorf("error writing spike sample number of %s: %w", w.group.Name, err)
	}
	w.n++
	return nil
}
