// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nwb

// ChannelType classifies the signal a continuous channel carries.
type ChannelType uint8

const (
	// ChannelElectrode is an extracellular electrode.
	ChannelElectrode ChannelType = iota
	// ChannelAux is an auxiliary (e.g. accelerometer) input.
	ChannelAux
	// ChannelADC is an analog-to-digital converter input.
	ChannelADC
)

// Channel describes one continuous channel as delivered by the acquisition topology.
type Channel struct {
	Name        string      // Name of the channel (e.g., CH1)
	StreamName  string      // Name of the stream the channel belongs to
	SourceID    int         // Identifier of the source node
	StreamID    int         // Identifier of the stream within the source
	LocalIndex  int         // Index of the channel within its stream
	GlobalIndex int         // Index of the channel across all streams
	BitVolts    float64     // Microvolts per stored count
	SampleRate  float64     // Nominal sample rate in Hz
	Type        ChannelType // Kind of signal
}

// Electrode is a spike source made of a fixed set of continuous channels.
type Electrode struct {
	Name              string    // Name of the electrode (e.g., Tetrode 1)
	Channels          []Channel // Constituent channels, the first sets calibration
	SamplesPerChannel int       // Waveform length per channel
}

// EventChannel is a source of TTL events bound to one stream.
type EventChannel struct {
	Name       string  // Name of the event source
	SourceID   int     // Identifier of the source node
	StreamID   int     // Identifier of the stream the events are aligned to
	SampleRate float64 // Sample rate used to derive event timestamps
}

// Topology is everything a recording session writes.
type Topology struct {
	Channels   []Channel // Continuous channels, pre-sorted by stream
	Electrodes []Electrode
	Events     []EventChannel
}

// ChannelInfo describes one column of a recorded continuous series.
type ChannelInfo struct {
	Name     string
	BitVolts float64 // Microvolts per stored count
	Type     ChannelType
}

// StreamInfo describes a recorded continuous series.
type StreamInfo struct {
	Name             string
	NumSamples       int64
	SampleRate       float64 // Hz, or UnknownSampleRate
	BaseSampleNumber int64   // First sync sample number of the series
	Channels         []ChannelInfo
}

// UnknownSampleRate is reported when the sample rate could not be determined.
const UnknownSampleRate = -1

// EventRecord is a TTL transition.
type EventRecord struct {
	Channel      int   // TTL line
	Rising       bool  // Edge state
	SampleNumber int64 // Sample number relative to the series start
}

// SpikeSeriesInfo describes a recorded spike series.
type SpikeSeriesInfo struct {
	Name              string
	NumSpikes         int64
	NumChannels       int
	SamplesPerChannel int
}
