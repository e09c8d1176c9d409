// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nwb

import "errors"

var (
	// ErrInvalidCalibration indicates a zero or non-finite calibration scale.
	ErrInvalidCalibration = errors.New("nwb: invalid calibration")

	// ErrGroupSizeMismatch indicates channels of one group wrote blocks of different sizes.
	ErrGroupSizeMismatch = errors.New("nwb: group block size mismatch")

	// ErrGroupRateMismatch indicates channels of one group have different sample rates.
	ErrGroupRateMismatch = errors.New("nwb: group sample rate mismatch")

	// ErrInvalidSampleRate indicates a channel or event source without a positive sample rate.
	ErrInvalidSampleRate = errors.New("nwb: invalid sample rate")

	// ErrContainerOpenFailed indicates the container or its acquisition root is unreadable.
	ErrContainerOpenFailed = errors.New("nwb: container open failed")

	// ErrEntryParseSkipped indicates an acquisition entry could not be parsed and was skipped.
	ErrEntryParseSkipped = errors.New("nwb: entry skipped")

	// ErrSeekOutOfRange indicates a seek on a stream without samples.
	ErrSeekOutOfRange = errors.New("nwb: seek out of range")

	// ErrStreamIndexOutOfRange indicates a stream selection beyond the stream index.
	ErrStreamIndexOutOfRange = errors.New("nwb: stream index out of range")

	// ErrNoStream indicates a read while no stream is selected.
	ErrNoStream = errors.New("nwb: no stream selected")

	// ErrChannelOutOfRange indicates a write for an unknown channel, electrode or event source.
	ErrChannelOutOfRange = errors.New("nwb: channel out of range")

	// ErrWaveformSize indicates a spike waveform of the wrong length.
	ErrWaveformSize = errors.New("nwb: waveform size mismatch")

	// ErrRecorderClosed indicates a write after Close.
	ErrRecorderClosed = errors.New("nwb: recorder closed")
)
