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
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/OpenPSG/nwb"
	"github.com/OpenPSG/nwb/container"
	"github.com/OpenPSG/nwb/container/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	f := container.NewMemory()
	r := newRecorder(t, f, probeTopology())

	// Channels arrive out of order, the leader last.
	for block := 0; block < 3; block++ {
		first := block * 10
		for _, ch := range []int{3, 1, 4, 2, 0} {
			step := float32(ch + 1)
			require.NoError(t, r.WriteBlock(ch, ramp(first, 10, step), int64(5000+first)))
		}
	}
	require.NoError(t, r.Close())

	id, err := container.AttrString(f, "/", "identifier")
	require.NoError(t, err)
	assert.Equal(t, "test-recording", id)

	ds, err := f.OpenDataset("/acquisition/probe/sync")
	require.NoError(t, err)
	sampleNumbers := make([]int64, 30)
	require.NoError(t, ds.ReadAt([]int64{0}, []int64{30}, sampleNumbers))
	for i, v := range sampleNumbers {
		require.Equal(t, int64(5000+i), v)
	}

	ds, err = f.OpenDataset("/acquisition/probe/timestamps")
	require.NoError(t, err)
	ts := make([]float64, 30)
	require.NoError(t, ds.ReadAt([]int64{0}, []int64{30}, ts))
	assert.InDelta(t, 5000.0/30000, ts[0], 1e-12)
	assert.InDelta(t, 5029.0/30000, ts[29], 1e-12)

	// Read back through playback.
	s, err := nwb.Open(f)
	require.NoError(t, err)
	require.Len(t, s.Streams(), 2)

	probe := s.Streams()[0]
	assert.Equal(t, "probe", probe.Name)
	assert.Equal(t, int64(30), probe.NumSamples)
	assert.InDelta(t, 30000.0, probe.SampleRate, 1e-6)
	assert.Equal(t, int64(5000), probe.BaseSampleNumber)
	require.Len(t, probe.Channels, 4)
	assert.InDelta(t, 0.195, probe.Channels[0].BitVolts, 1e-9)

	samples := make([]float32, 30*4)
	n, err := s.ReadWindow(samples, 30)
	require.NoError(t, err)
	require.Equal(t, 30, n)
	for i := 0; i < 30; i++ {
		for ch := 0; ch < 4; ch++ {
			want := float64(i) * float64(ch+1)
			require.InDelta(t, want, samples[i*4+ch], 0.195/2+1e-4, "sample %d channel %d", i, ch)
		}
	}

	aux := s.Streams()[1]
	assert.Equal(t, "aux", aux.Name)
	assert.Equal(t, nwb.ChannelAux, aux.Channels[0].Type)
	assert.InDelta(t, 1000.0, aux.SampleRate, 1e-6)
}

func TestWriterLeaderElection(t *testing.T) {
	f := newCountingFile(container.NewMemory())
	r := newRecorder(t, f, probeTopology(), nwb.WithFlushRows(64))

	for block := 0; block < 4; block++ {
		for _, ch := range []int{2, 0, 3, 1} {
			require.NoError(t, r.WriteBlock(ch, ramp(block*16, 16, 1), int64(block*16)))
		}
		if block < 3 {
			require.Zero(t, f.count("/acquisition/probe/data"), "block %d", block)
		}
	}

	// One write per dataset once the group holds a full run of rows.
	assert.Equal(t, 1, f.count("/acquisition/probe/timestamps"))
	assert.Equal(t, 1, f.count("/acquisition/probe/sync"))
	assert.Equal(t, 1, f.count("/acquisition/probe/data"))
	assert.Equal(t, 0, f.count("/acquisition/aux/timestamps"))

	// Nothing is left pending.
	require.NoError(t, r.Close())
	assert.Equal(t, 1, f.count("/acquisition/probe/data"))
	assert.Equal(t, 1, f.count("/acquisition/probe/sync"))
}

func TestWriterSQLiteCommitsPerRun(t *testing.T) {
	sf, err := sqlite.Create(filepath.Join(t.TempDir(), "recording.nwb"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, sf.Close())
	})

	topology := nwb.Topology{}
	for i := 0; i < 8; i++ {
		topology.Channels = append(topology.Channels, nwb.Channel{
			Name:        fmt.Sprintf("CH%d", i+1),
			StreamName:  "probe",
			LocalIndex:  i,
			GlobalIndex: i,
			BitVolts:    0.195,
			SampleRate:  30000,
		})
	}

	f := newCountingFile(sf)
	r := newRecorder(t, f, topology, nwb.WithFlushRows(256))

	const blocks, size = 16, 64
	for b := 0; b < blocks; b++ {
		for ch := 0; ch < 8; ch++ {
			require.NoError(t, r.WriteBlock(ch, ramp(b*size, size, float32(ch+1)/2), int64(b*size)))
		}
	}
	require.NoError(t, r.Close())

	// Each write is one transaction: four runs of 256 rows rather than one
	// per channel block.
	assert.Equal(t, blocks*size/256, f.count("/acquisition/probe/data"))
	assert.Equal(t, blocks*size/256, f.count("/acquisition/probe/sync"))

	s, err := nwb.Open(sf)
	require.NoError(t, err)
	require.Len(t, s.Streams(), 1)
	require.Equal(t, int64(blocks*size), s.Streams()[0].NumSamples)

	samples := make([]float32, blocks*size*8)
	n, err := s.ReadWindow(samples, blocks*size)
	require.NoError(t, err)
	require.Equal(t, blocks*size, n)
	for i := 0; i < n; i++ {
		for ch := 0; ch < 8; ch++ {
			require.InDelta(t, float64(i)*float64(ch+1)/2, samples[i*8+ch], 0.195/2+1e-3, "sample %d channel %d", i, ch)
		}
	}
}

func TestWriterFlush(t *testing.T) {
	f := container.NewMemory()
	r := newRecorder(t, f, probeTopology())

	for ch := 0; ch < 4; ch++ {
		require.NoError(t, r.WriteBlock(ch, ramp(0, 10, 1), 100))
	}
	// The leader runs a block ahead of the other channels.
	require.NoError(t, r.WriteBlock(0, ramp(10, 10, 1), 110))

	data, err := f.OpenDataset("/acquisition/probe/data")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 4}, data.Dims())

	// Flush writes the rows every channel has reached.
	require.NoError(t, r.Flush())
	assert.Equal(t, []int64{10, 4}, data.Dims())

	// Close writes the rest, with zeros where channels never arrived.
	require.NoError(t, r.Close())
	assert.Equal(t, []int64{20, 4}, data.Dims())

	row := make([]int16, 4)
	require.NoError(t, data.ReadAt([]int64{15, 0}, []int64{1, 4}, row))
	assert.Equal(t, []int16{77, 0, 0, 0}, row)

	syncs, err := f.OpenDataset("/acquisition/probe/sync")
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, syncs.Dims())
	sampleNumbers := make([]int64, 20)
	require.NoError(t, syncs.ReadAt([]int64{0}, []int64{20}, sampleNumbers))
	assert.Equal(t, int64(100), sampleNumbers[0])
	assert.Equal(t, int64(119), sampleNumbers[19])

	require.ErrorIs(t, r.Flush(), nwb.ErrRecorderClosed)
}

func TestWriterGroupSizeMismatch(t *testing.T) {
	f := container.NewMemory()
	r := newRecorder(t, f, probeTopology())

	require.NoError(t, r.WriteBlock(1, ramp(0, 64, 1), 0))
	require.ErrorIs(t, r.WriteBlock(0, ramp(0, 32, 1), 0), nwb.ErrGroupSizeMismatch)
	require.ErrorIs(t, r.WriteBlock(2, ramp(0, 65, 1), 0), nwb.ErrGroupSizeMismatch)

	// The failed calls did not advance their channels.
	require.NoError(t, r.WriteBlock(0, ramp(0, 64, 1), 0))
	require.NoError(t, r.WriteBlock(2, ramp(0, 64, 1), 0))
	require.NoError(t, r.WriteBlock(3, ramp(0, 64, 1), 0))

	// Other groups are independent.
	require.NoError(t, r.WriteBlock(4, ramp(0, 7, 1), 0))
	require.NoError(t, r.Close())

	ds, err := f.OpenDataset("/acquisition/probe/sync")
	require.NoError(t, err)
	assert.Equal(t, []int64{64}, ds.Dims())

	ds, err = f.OpenDataset("/acquisition/aux/sync")
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ds.Dims())
}

func TestWriterConcurrentChannels(t *testing.T) {
	f := container.NewMemory()
	r := newRecorder(t, f, probeTopology())

	const blocks, size = 20, 32
	var wg sync.WaitGroup
	errs := make(chan error, 5*blocks)
	for ch := 0; ch < 5; ch++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			for b := 0; b < blocks; b++ {
				if err := r.WriteBlock(ch, ramp(b*size, size, 1), int64(b*size)); err != nil {
					errs <- err
				}
			}
		}(ch)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	ds, err := f.OpenDataset("/acquisition/probe/sync")
	require.NoError(t, err)
	sampleNumbers := make([]int64, blocks*size)
	require.NoError(t, ds.ReadAt([]int64{0}, []int64{blocks * size}, sampleNumbers))
	for i, v := range sampleNumbers {
		require.Equal(t, int64(i), v)
	}

	data, err := f.OpenDataset("/acquisition/probe/data")
	require.NoError(t, err)
	assert.Equal(t, []int64{blocks * size, 4}, data.Dims())
}

func TestWriterEventsAndSpikes(t *testing.T) {
	f := container.NewMemory()
	r := newRecorder(t, f, probeTopology())

	require.NoError(t, r.WriteBlock(0, ramp(0, 10, 1), 300))
	require.NoError(t, r.WriteEvent(0, 1, true, 303))
	require.NoError(t, r.WriteEvent(0, 1, false, 307))
	require.NoError(t, r.WriteEvent(0, 3, true, 309))

	require.ErrorIs(t, r.WriteEvent(1, 1, true, 0), nwb.ErrChannelOutOfRange)
	require.ErrorIs(t, r.WriteEvent(0, 0, true, 0), nwb.ErrChannelOutOfRange)

	waveform := ramp(-16, 32, 1.95)
	second := ramp(0, 32, -3.9)
	require.NoError(t, r.WriteSpike(0, waveform, 305, 305.0/30000))
	require.ErrorIs(t, r.WriteSpike(0, waveform[:31], 306, 0), nwb.ErrWaveformSize)
	require.ErrorIs(t, r.WriteSpike(3, waveform, 306, 0), nwb.ErrChannelOutOfRange)
	require.NoError(t, r.WriteSpike(0, second, 308, 308.0/30000))
	require.NoError(t, r.Close())

	codes, err := f.OpenDataset("/acquisition/probe.TTL/data")
	require.NoError(t, err)
	got := make([]int32, 3)
	require.NoError(t, codes.ReadAt([]int64{0}, []int64{3}, got))
	assert.Equal(t, []int32{1, -1, 3}, got)

	spikes, err := f.OpenDataset("/acquisition/tetrode/data")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 8}, spikes.Dims())

	// Each frame keeps its own samples.
	for k, want := range [][]float32{waveform, second} {
		frame := make([]int16, 32)
		require.NoError(t, spikes.ReadAt([]int64{int64(k), 0, 0}, []int64{1, 4, 8}, frame))
		for i, v := range frame {
			assert.InDelta(t, float64(want[i]), float64(v)*0.195, 0.195/2+1e-4, "spike %d sample %d", k, i)
		}
	}

	s, err := nwb.Open(f)
	require.NoError(t, err)
	require.Len(t, s.Index().Spikes, 1)
	assert.Equal(t, nwb.SpikeSeriesInfo{Name: "tetrode", NumSpikes: 2, NumChannels: 4, SamplesPerChannel: 8}, s.Index().Spikes[0])
	assert.Equal(t, []nwb.EventRecord{
		{Channel: 1, Rising: true, SampleNumber: 3},
		{Channel: 1, Rising: false, SampleNumber: 7},
		{Channel: 3, Rising: true, SampleNumber: 9},
	}, s.Index().Events("probe"))
}

func TestWriterClosed(t *testing.T) {
	r := newRecorder(t, container.NewMemory(), probeTopology())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	require.ErrorIs(t, r.WriteBlock(0, ramp(0, 1, 1), 0), nwb.ErrRecorderClosed)
	require.ErrorIs(t, r.WriteEvent(0, 1, true, 0), nwb.ErrRecorderClosed)
	require.ErrorIs(t, r.WriteSpike(0, nil, 0, 0), nwb.ErrRecorderClosed)
}

func TestWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "recording.nwb")

	layout, err := nwb.Plan(probeTopology())
	require.NoError(t, err)

	r, err := nwb.CreateFile(p, layout)
	require.NoError(t, err)
	for ch := 0; ch < 5; ch++ {
		require.NoError(t, r.WriteBlock(ch, ramp(0, 100, 1), 0))
	}
	require.NoError(t, r.WriteEvent(0, 2, true, 40))
	require.NoError(t, r.Close())

	s, err := nwb.OpenFile(p)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	assert.NotEmpty(t, s.Index().Identifier)
	require.Len(t, s.Streams(), 2)
	assert.Equal(t, int64(100), s.Streams()[0].NumSamples)

	require.NoError(t, s.Seek(40))
	samples := make([]float32, 4)
	n, err := s.ReadWindow(samples, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.InDelta(t, 40.0, samples[0], 0.1)

	assert.Equal(t, []nwb.EventRecord{{Channel: 1, Rising: true, SampleNumber: 40}}, s.EventsInWindow(0, 100))
}

func TestOpenFileMissing(t *testing.T) {
	_, err := nwb.OpenFile(filepath.Join(t.TempDir(), "missing.nwb"))
	require.ErrorIs(t, err, nwb.ErrContainerOpenFailed)
}
