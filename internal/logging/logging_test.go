// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/OpenPSG/nwb/internal/config"
	"github.com/OpenPSG/nwb/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		hasError bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := logging.ParseLevel(tt.input)
			if tt.hasError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWriter(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("skipping acquisition entry", "entry", "broken")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "skipping acquisition entry", record["msg"])
	assert.Equal(t, "broken", record["entry"])
	assert.Equal(t, "nwbplay", record["component"])
}

func TestNewWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWriter(&buf, config.LoggingConfig{Level: "debug", Format: "text"})
	require.NoError(t, err)

	logger.Debug("stream selected", "stream", "probe")
	assert.Contains(t, buf.String(), "stream=probe")
}

func TestNewInvalid(t *testing.T) {
	_, err := logging.New(config.LoggingConfig{Level: "info", Format: "xml"})
	require.Error(t, err)

	_, err = logging.New(config.LoggingConfig{Level: "info", Format: "text", Output: "syslog"})
	require.Error(t, err)
}
