// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthFile(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "nwbplay.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
[logging]
level = "error"

[container]
chunk_bytes = 4096

[synth]
channels = 4
sample_rate = 30000.0
seconds = 0.1
block_size = 256
ttl_period = 0.02
spike_samples = 16
`), 0o644))

	path := filepath.Join(dir, "synth.nwb")
	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "synth", path}, &out))
	assert.Contains(t, out.String(), "3000 samples")
	return cfg, path
}

func TestSynthInfo(t *testing.T) {
	cfg, path := synthFile(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "info", path}, &out))
	assert.Contains(t, out.String(), "probe: 4 channels, 3000 samples, 30000 Hz, base sample 0, 4 events")
	assert.Contains(t, out.String(), "adc: 1 channels, 3000 samples")
	assert.Contains(t, out.String(), "tetrode: 2 spikes, 4 channels × 16 samples")
	assert.NotContains(t, out.String(), "Skipped")
}

func TestSynthEvents(t *testing.T) {
	cfg, path := synthFile(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "events", "-start", "2900", "-stop", "3700", path}, &out))
	assert.Equal(t, []string{
		"3600\tline 0\trising",
	}, strings.Split(strings.TrimSpace(out.String()), "\n"))

	out.Reset()
	require.NoError(t, run([]string{"-config", cfg, "events", path}, &out))
	assert.Equal(t, []string{
		"600\tline 0\trising",
		"1200\tline 0\tfalling",
		"1800\tline 0\trising",
		"2400\tline 0\tfalling",
	}, strings.Split(strings.TrimSpace(out.String()), "\n"))
}

func TestSynthReadLoops(t *testing.T) {
	cfg, path := synthFile(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "read", "-stream", "1", "-seek", "2998", "-samples", "4", path}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	for i, want := range []string{"2998", "2999", "3000", "3001"} {
		assert.True(t, strings.HasPrefix(lines[i], want+"\t"), lines[i])
	}
	// The ADC channel follows the TTL line: low at the ends of the recording.
	assert.Equal(t, "2998\t0.000", lines[0])
	assert.Equal(t, "3000\t0.000", lines[2])
}

func TestSynthReadWrapsSeek(t *testing.T) {
	cfg, path := synthFile(t)

	for _, seek := range []string{"-2", "5998"} {
		t.Run(seek, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, run([]string{"-config", cfg, "read", "-stream", "1", "-seek", seek, "-samples", "3", path}, &out))

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			require.Len(t, lines, 3)
			for i, want := range []string{"2998", "2999", "3000"} {
				assert.True(t, strings.HasPrefix(lines[i], want+"\t"), lines[i])
			}
		})
	}
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	require.ErrorIs(t, run(nil, &out), errUsage)
	require.ErrorIs(t, run([]string{"bogus"}, &out), errUsage)
	require.ErrorIs(t, run([]string{"info"}, &out), errUsage)
}
