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
	"log/slog"
	"time"
)

// Option configures a Recorder or a Source.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	identifier  string
	description string
	startTime   time.Time
	flushRows   int64
}

// DefaultFlushRows is the number of complete rows a continuous group buffers
// before writing them to the container.
const DefaultFlushRows = 4096

func newOptions(opts []Option) *options {
	o := &options{
		logger:    slog.Default(),
		startTime: time.Now(),
		flushRows: DefaultFlushRows,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIdentifier sets the recording identifier. A random UUID is used otherwise.
func WithIdentifier(id string) Option {
	return func(o *options) {
		o.identifier = id
	}
}

// WithSessionDescription sets the free text session description.
func WithSessionDescription(desc string) Option {
	return func(o *options) {
		o.description = desc
	}
}

// WithStartTime sets the session start time. The default is the time of Create.
func WithStartTime(t time.Time) Option {
	return func(o *options) {
		o.startTime = t
	}
}

// WithFlushRows sets how many complete rows each continuous group buffers
// before writing them out. A value of 1 writes every completed block.
func WithFlushRows(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.flushRows = int64(n)
		}
	}
}
