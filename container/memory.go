// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package container

import (
	"fmt"
	"path"
	"sort"
	"sync"
)

// Memory is a container held entirely in memory.
type Memory struct {
	mu     sync.RWMutex
	nodes  map[string]*memNode
	closed bool
}

type memNode struct {
	attrs map[string]any
	slab  *Slab // nil for groups
}

// NewMemory returns an empty container holding only the root group.
func NewMemory() *Memory {
	return &Memory{
		nodes: map[string]*memNode{
			"/": {attrs: map[string]any{}},
		},
	}
}

func (m *Memory) CreateGroup(p string) error {
	_, err := m.create(p, nil)
	return err
}

func (m *Memory) ListGroups(p string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	p = Clean(p)
	n, ok := m.nodes[p]
	if !ok || n.slab != nil {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, p)
	}

	var names []string
	for child, n := range m.nodes {
		if child != "/" && n.slab == nil && Parent(child) == p {
			names = append(names, path.Base(child))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) SetAttr(p, name string, value any) error {
	v, err := NormalizeAttr(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	n, ok := m.nodes[Clean(p)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	n.attrs[name] = v
	return nil
}

func (m *Memory) Attr(p, name string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	n, ok := m.nodes[Clean(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	v, ok := n.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%w: attribute %s@%s", ErrNotFound, p, name)
	}
	return v, nil
}

func (m *Memory) CreateDataset(p string, dtype DType, dims []int64) (Dataset, error) {
	if dtype.Size() == 0 || len(dims) == 0 {
		return nil, fmt.Errorf("%w: dataset %s of %s with dims %v", ErrShape, p, dtype, dims)
	}
	for _, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in %v", ErrShape, dims)
		}
	}
	d, err := m.create(p, NewSlab(dtype, dims))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (m *Memory) OpenDataset(p string) (Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	p = Clean(p)
	n, ok := m.nodes[p]
	if !ok || n.slab == nil {
		return nil, fmt.Errorf("%w: dataset %s", ErrNotFound, p)
	}
	return &memDataset{m: m, path: p, node: n}, nil
}

// Close marks the container closed. Its contents are discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (m *Memory) create(p string, slab *Slab) (*memDataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	p = Clean(p)
	if _, ok := m.nodes[p]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, p)
	}
	parent, ok := m.nodes[Parent(p)]
	if !ok || parent.slab != nil {
		return nil, fmt.Errorf("%w: parent group of %s", ErrNotFound, p)
	}

	n := &memNode{attrs: map[string]any{}, slab: slab}
	m.nodes[p] = n
	return &memDataset{m: m, path: p, node: n}, nil
}

type memDataset struct {
	m    *Memory
	path string
	node *memNode
}

func (d *memDataset) Path() string { return d.path }

func (d *memDataset) DType() DType { return d.node.slab.dtype }

func (d *memDataset) Dims() []int64 {
	d.m.mu.RLock()
	defer d.m.mu.RUnlock()
	return d.node.slab.Dims()
}

func (d *memDataset) WriteAt(offset, shape []int64, data any) error {
	raw, err := Encode(d.node.slab.dtype, data)
	if err != nil {
		return err
	}

	d.m.mu.Lock()
	defer d.m.mu.Unlock()

	if d.m.closed {
		return ErrClosed
	}
	return d.node.slab.Write(offset, shape, raw)
}

func (d *memDataset) ReadAt(offset, shape []int64, dst any) error {
	n, err := Len(dst)
	if err != nil {
		return err
	}
	raw := make([]byte, n*d.node.slab.dtype.Size())

	d.m.mu.RLock()
	if d.m.closed {
		d.m.mu.RUnlock()
		return ErrClosed
	}
	err = d.node.slab.Read(offset, shape, raw)
	d.m.mu.RUnlock()
	if err != nil {
		return err
	}

	return Decode(d.node.slab.dtype, raw, dst)
}
