// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nwb_test

import (
	"sync"
	"testing"

	"github.com/OpenPSG/nwb"
	"github.com/OpenPSG/nwb/container"
	"github.com/stretchr/testify/require"
)

// probeTopology has a four channel probe stream, a single channel
// auxiliary stream, one tetrode and one event source on the probe stream.
func probeTopology() nwb.Topology {
	probe := make([]nwb.Channel, 4)
	for i := range probe {
		probe[i] = nwb.Channel{
			Name:        "CH" + string(rune('1'+i)),
			StreamName:  "probe",
			SourceID:    100,
			StreamID:    0,
			LocalIndex:  i,
			GlobalIndex: i,
			BitVolts:    0.195,
			SampleRate:  30000,
		}
	}
	aux := nwb.Channel{
		Name:        "AUX1",
		StreamName:  "aux",
		SourceID:    100,
		StreamID:    1,
		GlobalIndex: 4,
		BitVolts:    37.4,
		SampleRate:  1000,
		Type:        nwb.ChannelAux,
	}

	return nwb.Topology{
		Channels: append(probe, aux),
		Electrodes: []nwb.Electrode{{
			Name:              "tetrode",
			Channels:          probe,
			SamplesPerChannel: 8,
		}},
		Events: []nwb.EventChannel{{
			Name:     "TTL input",
			SourceID: 100,
			StreamID: 0,
		}},
	}
}

// ramp returns n samples starting at first, scaled by step.
func ramp(first, n int, step float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(first+i) * step
	}
	return out
}

func newRecorder(t *testing.T, f container.File, topology nwb.Topology, opts ...nwb.Option) *nwb.Recorder {
	t.Helper()

	layout, err := nwb.Plan(topology)
	require.NoError(t, err)

	opts = append([]nwb.Option{nwb.WithIdentifier("test-recording")}, opts...)
	r, err := nwb.Create(f, layout, opts...)
	require.NoError(t, err)
	return r
}

// countingFile counts hyperslab writes per dataset path.
type countingFile struct {
	container.File

	mu     sync.Mutex
	writes map[string]int
}

func newCountingFile(f container.File) *countingFile {
	return &countingFile{File: f, writes: make(map[string]int)}
}

func (c *countingFile) CreateDataset(p string, dtype container.DType, dims []int64) (container.Dataset, error) {
	ds, err := c.File.CreateDataset(p, dtype, dims)
	if err != nil {
		return nil, err
	}
	return &countingDataset{Dataset: ds, c: c}, nil
}

func (c *countingFile) count(p string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[p]
}

type countingDataset struct {
	container.Dataset
	c *countingFile
}

func (d *countingDataset) WriteAt(offset, shape []int64, data any) error {
	d.c.mu.Lock()
	d.c.writes[d.Path()]++
	d.c.mu.Unlock()
	return d.Dataset.WriteAt(offset, shape, data)
}
