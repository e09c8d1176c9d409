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
	"math"
	"strings"

	"github.com/OpenPSG/nwb/container"
)

// Index is the result of scanning a container.
type Index struct {
	Identifier string
	Streams    []StreamInfo
	Spikes     []SpikeSeriesInfo
	Skipped    []string // Entries that could not be parsed

	events map[string][]EventRecord // By continuous series name
}

// Events returns the TTL events aligned to a continuous series, ordered as stored.
func (ix *Index) Events(stream string) []EventRecord {
	return ix.events[stream]
}

type entryKind int

const (
	entryUnknown entryKind = iota
	entryContinuous
	entryEvents
	entrySpikes
)

type entry struct {
	name string
	kind entryKind
}

// Discover scans the acquisition entries of a container. Entries that
// cannot be parsed are logged and left out of the index; only an unreadable
// acquisition root fails the scan.
func Discover(f container.File, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	names, err := f.ListGroups(acquisitionPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainerOpenFailed, err)
	}

	ix := &Index{events: make(map[string][]EventRecord)}
	if id, err := container.AttrString(f, "/", attrIdentifier); err == nil {
		ix.Identifier = id
	}

	skip := func(name string, err error) {
		logger.Warn("skipping acquisition entry", "entry", name, "error", fmt.Errorf("%w: %w", ErrEntryParseSkipped, err))
		ix.Skipped = append(ix.Skipped, name)
	}

	entries := make([]entry, 0, len(names))
	for _, name := range names {
		kind, err := classify(f, name)
		if err != nil {
			skip(name, err)
			continue
		}
		entries = append(entries, entry{name: name, kind: kind})
	}

	// Continuous series first: events are aligned to their base sample numbers.
	for _, e := range entries {
		switch e.kind {
		case entryContinuous:
			info, err := readContinuous(f, e.name)
			if err != nil {
				skip(e.name, err)
				continue
			}
			ix.Streams = append(ix.Streams, info)
		case entrySpikes:
			info, err := readSpikes(f, e.name)
			if err != nil {
				skip(e.name, err)
				continue
			}
			ix.Spikes = append(ix.Spikes, info)
		case entryUnknown:
			logger.Debug("ignoring acquisition entry", "entry", e.name)
		}
	}

	bases := make(map[string]int64, len(ix.Streams))
	for _, s := range ix.Streams {
		bases[s.Name] = s.BaseSampleNumber
	}
	for _, e := range entries {
		if e.kind != entryEvents {
			continue
		}
		stream, records, err := readEvents(f, e.name, bases)
		if err != nil {
			skip(e.name, err)
			continue
		}
		ix.events[stream] = append(ix.events[stream], records...)
	}

	logger.Debug("container scanned",
		"streams", len(ix.Streams),
		"spikes", len(ix.Spikes),
		"skipped", len(ix.Skipped))

	return ix, nil
}

func classify(f container.File, name string) (entryKind, error) {
	typ, err := container.AttrString(f, seriesPath(name), attrNeurodataType)
	if err != nil {
		if errors.Is(err, container.ErrNotFound) {
			return entryUnknown, nil
		}
		return entryUnknown, err
	}

	switch {
	case typ == typeElectricalSeries:
		return entryContinuous, nil
	case typ == typeTimeSeries && strings.HasSuffix(name, ttlSuffix):
		return entryEvents, nil
	case typ == typeSpikeEventSeries:
		return entrySpikes, nil
	default:
		return entryUnknown, nil
	}
}

func readContinuous(f container.File, name string) (StreamInfo, error) {
	info := StreamInfo{Name: name}

	data, err := f.OpenDataset(datasetPath(name, dsData))
	if err != nil {
		return info, err
	}
	dims := data.Dims()
	if len(dims) != 2 || data.DType() != container.Int16 {
		return info, fmt.Errorf("data is %s with dims %v, want int16 [samples × channels]", data.DType(), dims)
	}
	info.NumSamples = dims[0]
	columns := int(dims[1])

	if info.SampleRate, err = inferSampleRate(f, name); err != nil {
		return info, err
	}

	syncs, err := readInt64s(f, datasetPath(name, dsSync), 1)
	if err != nil {
		return info, err
	}
	if len(syncs) > 0 {
		info.BaseSampleNumber = syncs[0]
	}

	conversions, err := readConversions(f, name, columns)
	if err != nil {
		return info, err
	}
	channelTypes, err := readChannelTypes(f, name, columns)
	if err != nil {
		return info, err
	}

	for k := 0; k < columns; k++ {
		bitVolts := conversionToBitVolts(conversions[k])
		if err := checkScale(bitVolts); err != nil {
			return info, fmt.Errorf("column %d: %w", k, err)
		}
		info.Channels = append(info.Channels, ChannelInfo{
			Name:     fmt.Sprintf("CH%d", k),
			BitVolts: bitVolts,
			Type:     ChannelType(channelTypes[k]),
		})
	}

	return info, nil
}

// readConversions returns the volts per count of every column. The per
// channel array wins; when it is missing or does not cover the columns the
// series wide conversion attribute of the data applies to all of them.
func readConversions(f container.File, name string, columns int) ([]float64, error) {
	conversions, err := readFloat64s(f, datasetPath(name, dsChannelConversion))
	if err != nil && !errors.Is(err, container.ErrNotFound) {
		return nil, err
	}
	if err == nil && len(conversions) == columns {
		return conversions, nil
	}

	conversion, err := container.AttrFloat64(f, datasetPath(name, dsData), attrConversion)
	if err != nil {
		if errors.Is(err, container.ErrNotFound) {
			return nil, fmt.Errorf("no channel conversion covers %d columns", columns)
		}
		return nil, err
	}
	conversions = make([]float64, columns)
	for k := range conversions {
		conversions[k] = conversion
	}
	return conversions, nil
}

// readChannelTypes returns the type of every column, all electrodes when
// the series carries no type array.
func readChannelTypes(f container.File, name string, columns int) ([]uint8, error) {
	channelTypes := make([]uint8, columns)
	types, err := f.OpenDataset(datasetPath(name, dsChannelType))
	if errors.Is(err, container.ErrNotFound) {
		return channelTypes, nil
	} else if err != nil {
		return nil, err
	}
	if len(types.Dims()) != 1 || types.Dims()[0] != int64(columns) {
		return nil, fmt.Errorf("channel types %v do not match %d columns", types.Dims(), columns)
	}
	if err := types.ReadAt([]int64{0}, []int64{int64(columns)}, channelTypes); err != nil {
		return nil, err
	}
	return channelTypes, nil
}

// inferSampleRate prefers the interval attribute of the timestamps and
// falls back to the spacing of the first three timestamps.
func inferSampleRate(f container.File, name string) (float64, error) {
	p := datasetPath(name, dsTimestamps)
	ts, err := f.OpenDataset(p)
	if err != nil {
		return 0, err
	}

	interval, err := container.AttrFloat64(f, p, attrInterval)
	switch {
	case err == nil:
		if interval > 0 && !math.IsInf(interval, 0) {
			return 1 / interval, nil
		}
		return UnknownSampleRate, nil
	case !errors.Is(err, container.ErrNotFound):
		return 0, err
	}

	dims := ts.Dims()
	if len(dims) != 1 || dims[0] < 3 || ts.DType() != container.Float64 {
		return UnknownSampleRate, nil
	}
	t := make([]float64, 3)
	if err := ts.ReadAt([]int64{0}, []int64{3}, t); err != nil {
		return 0, err
	}
	return sampleRateFromTimestamps(t), nil
}

// sampleRateFromTimestamps derives the rate from the first three
// timestamps. A first timestamp of exactly zero is accepted so recordings
// that start at time zero still get a rate; a negative first timestamp, a
// non-positive third timestamp or a third timestamp not after the first
// leave the rate unknown.
func sampleRateFromTimestamps(t []float64) float64 {
	if len(t) < 3 || t[0] < 0 || t[2] <= 0 || t[2] <= t[0] {
		return UnknownSampleRate
	}
	return 2 / (t[2] - t[0])
}

func readEvents(f container.File, name string, bases map[string]int64) (string, []EventRecord, error) {
	stream, err := container.AttrString(f, seriesPath(name), attrSourceSeries)
	if err != nil {
		if !errors.Is(err, container.ErrNotFound) {
			return "", nil, err
		}
		stream = strings.TrimSuffix(name, ttlSuffix)
	}

	codes, err := readInt64s(f, datasetPath(name, dsData), -1)
	if err != nil {
		return "", nil, err
	}
	syncs, err := readInt64s(f, datasetPath(name, dsSync), -1)
	if err != nil {
		return "", nil, err
	}
	if len(codes) != len(syncs) {
		return "", nil, fmt.Errorf("%d edge codes for %d sample numbers", len(codes), len(syncs))
	}

	base := bases[stream]
	records := make([]EventRecord, 0, len(codes))
	for k, code := range codes {
		if code == 0 {
			return "", nil, fmt.Errorf("event %d has no TTL line", k)
		}
		line := code
		if line < 0 {
			line = -line
		}
		records = append(records, EventRecord{
			Channel:      int(line),
			Rising:       code > 0,
			SampleNumber: syncs[k] - base,
		})
	}
	return stream, records, nil
}

func readSpikes(f container.File, name string) (SpikeSeriesInfo, error) {
	data, err := f.OpenDataset(datasetPath(name, dsData))
	if err != nil {
		return SpikeSeriesInfo{}, err
	}
	dims := data.Dims()
	if len(dims) != 3 {
		return SpikeSeriesInfo{}, fmt.Errorf("spike data has dims %v, want [spikes × channels × samples]", dims)
	}
	return SpikeSeriesInfo{
		Name:              name,
		NumSpikes:         dims[0],
		NumChannels:       int(dims[1]),
		SamplesPerChannel: int(dims[2]),
	}, nil
}

// readInt64s reads up to limit leading elements (all when limit < 0) of a
// one-dimensional integer or floating point dataset.
func readInt64s(f container.File, p string, limit int64) ([]int64, error) {
	ds, err := f.OpenDataset(p)
	if err != nil {
		return nil, err
	}
	dims := ds.Dims()
	if len(dims) != 1 {
		return nil, fmt.Errorf("%s has dims %v, want one dimension", p, dims)
	}
	n := dims[0]
	if limit >= 0 {
		n = min(n, limit)
	}

	out := make([]int64, n)
	at, shape := []int64{0}, []int64{n}
	switch ds.DType() {
	case container.Int64:
		err = ds.ReadAt(at, shape, out)
	case container.Int32:
		buf := make([]int32, n)
		if err = ds.ReadAt(at, shape, buf); err == nil {
			for i, v := range buf {
				out[i] = int64(v)
			}
		}
	case container.Float64:
		buf := make([]float64, n)
		if err = ds.ReadAt(at, shape, buf); err == nil {
			for i, v := range buf {
				out[i] = int64(v)
			}
		}
	default:
		err = fmt.Errorf("%w: %s is %s", container.ErrDType, p, ds.DType())
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readFloat64s(f container.File, p string) ([]float64, error) {
	ds, err := f.OpenDataset(p)
	if err != nil {
		return nil, err
	}
	dims := ds.Dims()
	if len(dims) != 1 {
		return nil, fmt.Errorf("%s has dims %v, want one dimension", p, dims)
	}

	out := make([]float64, dims[0])
	switch ds.DType() {
	case container.Float64:
		err = ds.ReadAt([]int64{0}, dims, out)
	case container.Float32:
		buf := make([]float32, dims[0])
		if err = ds.ReadAt([]int64{0}, dims, buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	default:
		err = fmt.Errorf("%w: %s is %s", container.ErrDType, p, ds.DType())
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
