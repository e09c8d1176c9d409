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
	"strings"
)

// Placement locates a continuous channel within its group.
type Placement struct {
	Group  int // Index into Layout.Groups
	Offset int // Column of the channel within the group's dataset
}

// Group is a set of sample-synchronous channels sharing one dataset.
type Group struct {
	Name       string
	SourceID   int
	StreamID   int
	SampleRate float64
	Channels   []Channel
}

// ElectrodeGroup is the write group of one spike electrode.
type ElectrodeGroup struct {
	Name              string
	Channels          []Channel
	SamplesPerChannel int
	BitVolts          float64 // Calibration of the first constituent channel
}

// EventGroup is the write group of one event source.
type EventGroup struct {
	Name       string
	Source     EventChannel
	Group      int // Index of the continuous group the events align to, -1 if none
	SampleRate float64
}

// Layout is the write topology of a recording session.
type Layout struct {
	Groups     []Group
	Placements []Placement // Parallel to Topology.Channels
	Electrodes []ElectrodeGroup
	Events     []EventGroup
}

// Plan partitions the topology into write groups. Continuous channels must
// arrive sorted by stream: a new group starts whenever (SourceID, StreamID)
// differs from the previous channel's.
func Plan(t Topology) (*Layout, error) {
	l := &Layout{Placements: make([]Placement, len(t.Channels))}
	names := newNameSet()

	for i, ch := range t.Channels {
		if err := checkScale(ch.BitVolts); err != nil {
			return nil, fmt.Errorf("channel %d (%s): %w", i, ch.Name, err)
		}
		if !(ch.SampleRate > 0) {
			return nil, fmt.Errorf("channel %d (%s): %w: %v", i, ch.Name, ErrInvalidSampleRate, ch.SampleRate)
		}

		if n := len(l.Groups); n > 0 {
			g := &l.Groups[n-1]
			if g.SourceID == ch.SourceID && g.StreamID == ch.StreamID {
				if g.SampleRate != ch.SampleRate {
					return nil, fmt.Errorf("channel %d (%s): %w: %v Hz in a %v Hz group",
						i, ch.Name, ErrGroupRateMismatch, ch.SampleRate, g.SampleRate)
				}
				l.Placements[i] = Placement{Group: n - 1, Offset: len(g.Channels)}
				g.Channels = append(g.Channels, ch)
				continue
			}
		}

		name := ch.StreamName
		if name == "" {
			name = fmt.Sprintf("source%d_stream%d", ch.SourceID, ch.StreamID)
		}
		l.Groups = append(l.Groups, Group{
			Name:       names.claim(name),
			SourceID:   ch.SourceID,
			StreamID:   ch.StreamID,
			SampleRate: ch.SampleRate,
			Channels:   []Channel{ch},
		})
		l.Placements[i] = Placement{Group: len(l.Groups) - 1}
	}

	for i, e := range t.Electrodes {
		if len(e.Channels) == 0 {
			return nil, fmt.Errorf("electrode %d (%s): no channels", i, e.Name)
		}
		if e.SamplesPerChannel <= 0 {
			return nil, fmt.Errorf("electrode %d (%s): %w: %d samples per channel", i, e.Name, ErrWaveformSize, e.SamplesPerChannel)
		}
		bitVolts := e.Channels[0].BitVolts
		if err := checkScale(bitVolts); err != nil {
			return nil, fmt.Errorf("electrode %d (%s): %w", i, e.Name, err)
		}

		name := e.Name
		if name == "" {
			name = fmt.Sprintf("electrode%d", i)
		}
		l.Electrodes = append(l.Electrodes, ElectrodeGroup{
			Name:              names.claim(name),
			Channels:          append([]Channel(nil), e.Channels...),
			SamplesPerChannel: e.SamplesPerChannel,
			BitVolts:          bitVolts,
		})
	}

	for i, ev := range t.Events {
		group := -1
		for j, g := range l.Groups {
			if g.SourceID == ev.SourceID && g.StreamID == ev.StreamID {
				group = j
				break
			}
		}

		rate := ev.SampleRate
		base := ev.Name
		if group >= 0 {
			base = l.Groups[group].Name
			if !(rate > 0) {
				rate = l.Groups[group].SampleRate
			}
		}
		if !(rate > 0) {
			return nil, fmt.Errorf("event channel %d (%s): %w: %v", i, ev.Name, ErrInvalidSampleRate, ev.SampleRate)
		}
		if base == "" {
			base = fmt.Sprintf("events%d", i)
		}

		l.Events = append(l.Events, EventGroup{
			Name:       names.claimSuffixed(base, ttlSuffix),
			Source:     ev,
			Group:      group,
			SampleRate: rate,
		})
	}

	return l, nil
}

// nameSet hands out unique series names.
type nameSet map[string]struct{}

func newNameSet() nameSet {
	return make(nameSet)
}

func (s nameSet) claim(name string) string {
	return s.claimSuffixed(name, "")
}

// claimSuffixed keeps suffix at the end of the name when deduplicating.
func (s nameSet) claimSuffixed(name, suffix string) string {
	name = strings.ReplaceAll(name, "/", "_")
	candidate := name + suffix
	for n := 1; ; n++ {
		if _, taken := s[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s_%d%s", name, n, suffix)
	}
	s[candidate] = struct{}{}
	return candidate
}
