// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nwb

// Container layout.
const (
	acquisitionPath = "/acquisition"
	ttlSuffix       = ".TTL"
	nwbVersion      = "2.6.0"

	typeElectricalSeries = "ElectricalSeries"
	typeTimeSeries       = "TimeSeries"
	typeSpikeEventSeries = "SpikeEventSeries"

	attrNeurodataType     = "neurodata_type"
	attrDescription       = "description"
	attrIdentifier        = "identifier"
	attrNWBVersion        = "nwb_version"
	attrSessionStart      = "session_start_time"
	attrSessionDesc       = "session_description"
	attrSourceSeries      = "source_series"
	attrConversion        = "conversion"
	attrResolution        = "resolution"
	attrUnit              = "unit"
	attrInterval          = "interval"
	attrSamplesPerChannel = "samples_per_channel"

	dsData              = "data"
	dsTimestamps        = "timestamps"
	dsSync              = "sync"
	dsChannelConversion = "channel_conversion"
	dsChannelType       = "channel_type"
	dsElectrodes        = "electrodes"
)

func seriesPath(name string) string {
	return acquisitionPath + "/" + name
}

func datasetPath(series, name string) string {
	return seriesPath(series) + "/" + name
}
