// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nwb

// EventsInWindow returns the events of the active stream falling in the
// playback interval [start, stop), where sample numbers count up without
// wrapping across loops of the recording. Returned channels are 0-based
// TTL lines and sample numbers are on the same unbounded timeline. An
// interval crossing the end of the recording is split at every ring
// boundary, so each loop contributes its own copy of the events.
//
// The work grows with (stop-start)/numSamples: callers replaying in real
// time should ask for one playback window at a time.
func (s *Source) EventsInWindow(start, stop int64) []EventRecord {
	info, err := s.Stream()
	if err != nil || info.NumSamples <= 0 || stop <= start {
		return nil
	}
	return projectEvents(s.index.Events(info.Name), info.NumSamples, max(start, 0), stop)
}

func projectEvents(events []EventRecord, numSamples, start, stop int64) []EventRecord {
	if len(events) == 0 {
		return nil
	}

	var out []EventRecord
	for seg := start; seg < stop; {
		localStart := seg % numSamples
		loopStart := seg - localStart

		// Segment end without forming (loop+1)*numSamples, which overflows
		// near the top of the timeline.
		segEnd := stop
		if rem := numSamples - localStart; stop-seg > rem {
			segEnd = seg + rem
		}
		localStop := localStart + (segEnd - seg)

		for _, ev := range events {
			if ev.SampleNumber >= localStart && ev.SampleNumber < localStop {
				out = append(out, EventRecord{
					Channel:      ev.Channel - 1,
					Rising:       ev.Rising,
					SampleNumber: loopStart + ev.SampleNumber,
				})
			}
		}
		seg = segEnd
	}
	return out
}
