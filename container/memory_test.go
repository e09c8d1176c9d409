// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package container_test

import (
	"testing"

	"github.com/OpenPSG/nwb/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGroups(t *testing.T) {
	m := container.NewMemory()
	t.Cleanup(func() {
		require.NoError(t, m.Close())
	})

	require.NoError(t, m.CreateGroup("/acquisition"))
	require.NoError(t, m.CreateGroup("/acquisition/b"))
	require.NoError(t, m.CreateGroup("acquisition/a/"))
	_, err := m.CreateDataset("/acquisition/a/data", container.Int16, []int64{0, 2})
	require.NoError(t, err)

	names, err := m.ListGroups("/acquisition")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.ErrorIs(t, m.CreateGroup("/acquisition/a"), container.ErrExists)
	require.ErrorIs(t, m.CreateGroup("/missing/x"), container.ErrNotFound)

	_, err = m.ListGroups("/acquisition/a/data")
	require.ErrorIs(t, err, container.ErrNotFound)
}

func TestMemoryAttrs(t *testing.T) {
	m := container.NewMemory()
	require.NoError(t, m.CreateGroup("/g"))

	require.NoError(t, m.SetAttr("/g", "rate", float32(0.5)))
	require.NoError(t, m.SetAttr("/g", "count", 3))
	require.NoError(t, m.SetAttr("/g", "kind", "ElectricalSeries"))

	rate, err := container.AttrFloat64(m, "/g", "rate")
	require.NoError(t, err)
	assert.Equal(t, 0.5, rate)

	count, err := container.AttrFloat64(m, "/g", "count")
	require.NoError(t, err)
	assert.Equal(t, 3.0, count)

	kind, err := container.AttrString(m, "/g", "kind")
	require.NoError(t, err)
	assert.Equal(t, "ElectricalSeries", kind)

	_, err = container.AttrString(m, "/g", "rate")
	require.ErrorIs(t, err, container.ErrDType)

	_, err = m.Attr("/g", "missing")
	require.ErrorIs(t, err, container.ErrNotFound)

	require.ErrorIs(t, m.SetAttr("/g", "bad", []int{1}), container.ErrDType)
}

func TestMemoryHyperslab(t *testing.T) {
	m := container.NewMemory()
	ds, err := m.CreateDataset("/data", container.Int16, []int64{0, 3})
	require.NoError(t, err)

	// Column writes of different lengths grow the first dimension.
	require.NoError(t, ds.WriteAt([]int64{0, 0}, []int64{4, 1}, []int16{1, 2, 3, 4}))
	require.NoError(t, ds.WriteAt([]int64{0, 2}, []int64{2, 1}, []int16{-1, -2}))
	assert.Equal(t, []int64{4, 3}, ds.Dims())

	got := make([]int16, 6)
	require.NoError(t, ds.ReadAt([]int64{1, 0}, []int64{2, 3}, got))
	assert.Equal(t, []int16{2, 0, -2, 3, 0, 0}, got)

	require.ErrorIs(t, ds.ReadAt([]int64{3, 0}, []int64{2, 3}, got), container.ErrShape)
	require.ErrorIs(t, ds.WriteAt([]int64{0, 3}, []int64{1, 1}, []int16{9}), container.ErrShape)
	require.ErrorIs(t, ds.WriteAt([]int64{0, 0}, []int64{1, 1}, []float32{9}), container.ErrDType)
}

func TestMemoryThreeDimensional(t *testing.T) {
	m := container.NewMemory()
	ds, err := m.CreateDataset("/spikes", container.Float64, []int64{0, 2, 3})
	require.NoError(t, err)

	frame := []float64{1, 2, 3, 4, 5, 6}
	require.NoError(t, ds.WriteAt([]int64{1, 0, 0}, []int64{1, 2, 3}, frame))
	assert.Equal(t, []int64{2, 2, 3}, ds.Dims())

	got := make([]float64, 2)
	require.NoError(t, ds.ReadAt([]int64{1, 1, 1}, []int64{1, 1, 2}, got))
	assert.Equal(t, []float64{5, 6}, got)

	zero := make([]float64, 6)
	require.NoError(t, ds.ReadAt([]int64{0, 0, 0}, []int64{1, 2, 3}, zero))
	assert.Equal(t, make([]float64, 6), zero)
}

func TestMemoryClosed(t *testing.T) {
	m := container.NewMemory()
	ds, err := m.CreateDataset("/x", container.Int64, []int64{0})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	require.ErrorIs(t, m.CreateGroup("/g"), container.ErrClosed)
	require.ErrorIs(t, ds.WriteAt([]int64{0}, []int64{1}, []int64{1}), container.ErrClosed)
}
