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

	"github.com/OpenPSG/nwb/container/sqlite"
)

// CreateFile creates a container file and starts a recording session in
// it. Closing the Recorder closes the file.
func CreateFile(path string, layout *Layout, opts ...Option) (*Recorder, error) {
	f, err := sqlite.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating container: %w", err)
	}

	r, err := Create(f, layout, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.ownsFile = true
	return r, nil
}

// OpenFile opens a container file for playback. Closing the Source closes the file.
func OpenFile(path string, opts ...Option) (*Source, error) {
	f, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainerOpenFailed, err)
	}

	s, err := Open(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.ownsFile = true
	return s, nil
}
