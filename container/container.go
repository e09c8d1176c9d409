// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package container defines the hierarchical store that recordings are
// persisted in: named groups, attributes and typed datasets whose first
// dimension can grow. Implementations live in this package (in memory) and
// in container/sqlite (on disk).
package container

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound indicates the requested group, dataset or attribute does not exist.
	ErrNotFound = errors.New("container: not found")

	// ErrExists indicates a node already exists at the requested path.
	ErrExists = errors.New("container: already exists")

	// ErrShape indicates an offset/shape pair that does not fit the dataset.
	ErrShape = errors.New("container: invalid shape")

	// ErrDType indicates a buffer or attribute of an unsupported or mismatched type.
	ErrDType = errors.New("container: element type mismatch")

	// ErrClosed indicates an operation on a closed container.
	ErrClosed = errors.New("container: closed")
)

// File is an open container.
type File interface {
	// CreateGroup creates a group. The parent group must exist.
	CreateGroup(path string) error
	// ListGroups returns the sorted names of the groups directly below path.
	ListGroups(path string) ([]string, error)
	// SetAttr sets an attribute on a group or dataset. Values must be
	// float64, int64 or string (other numeric kinds are widened).
	SetAttr(path, name string, value any) error
	// Attr reads an attribute. It returns float64, int64 or string.
	Attr(path, name string) (any, error)
	// CreateDataset creates a dataset. dims[0] is the initial extent of the
	// extensible dimension and is usually zero.
	CreateDataset(path string, dtype DType, dims []int64) (Dataset, error)
	// OpenDataset opens an existing dataset.
	OpenDataset(path string) (Dataset, error)
	Close() error
}

// Dataset is a typed n-dimensional array stored in row-major order.
type Dataset interface {
	Path() string
	DType() DType
	// Dims returns the current extent of every dimension.
	Dims() []int64
	// WriteAt writes a hyperslab. The first dimension grows as needed, the
	// others are fixed. data must be a slice of the dataset element type.
	WriteAt(offset, shape []int64, data any) error
	// ReadAt reads a hyperslab into dst, which must be a slice of the
	// dataset element type holding exactly the product of shape elements.
	ReadAt(offset, shape []int64, dst any) error
}

// Clean normalizes a node path to an absolute, slash separated form.
func Clean(p string) string {
	return path.Clean("/" + strings.Trim(p, "/"))
}

// Parent returns the parent path of p. The parent of the root is the root.
func Parent(p string) string {
	return path.Dir(Clean(p))
}

// AttrFloat64 reads a numeric attribute as float64.
func AttrFloat64(f File, path, name string) (float64, error) {
	v, err := f.Attr(path, name)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: attribute %s@%s is %T", ErrDType, path, name, v)
	}
}

// AttrString reads a string attribute.
func AttrString(f File, path, name string) (string, error) {
	v, err := f.Attr(path, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: attribute %s@%s is %T", ErrDType, path, name, v)
	}
	return s, nil
}

// NormalizeAttr widens an attribute value to one of the stored kinds.
func NormalizeAttr(value any) (any, error) {
	switch v := value.(type) {
	case float64, int64, string:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	default:
		return nil, fmt.Errorf("%w: unsupported attribute type %T", ErrDType, value)
	}
}
