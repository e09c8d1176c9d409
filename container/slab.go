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
	"encoding/binary"
	"fmt"
	"math"
)

// DType is the element type of a dataset.
type DType uint8

const (
	Int16 DType = iota + 1
	Int32
	Int64
	Uint8
	Float32
	Float64
)

// Size returns the encoded size of one element in bytes.
func (t DType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		return 0
	}
}

func (t DType) String() string {
	switch t {
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(t))
	}
}

// Slab is a dense row-major array of encoded elements. Both stores keep
// dataset contents (or chunks of them) in slabs.
type Slab struct {
	dtype DType
	dims  []int64
	buf   []byte
}

// NewSlab allocates a zeroed slab.
func NewSlab(dtype DType, dims []int64) *Slab {
	return &Slab{
		dtype: dtype,
		dims:  append([]int64(nil), dims...),
		buf:   make([]byte, elements(dims)*int64(dtype.Size())),
	}
}

// LoadSlab wraps previously encoded contents.
func LoadSlab(dtype DType, dims []int64, raw []byte) (*Slab, error) {
	if int64(len(raw)) != elements(dims)*int64(dtype.Size()) {
		return nil, fmt.Errorf("%w: %d bytes for dims %v of %s", ErrShape, len(raw), dims, dtype)
	}
	return &Slab{dtype: dtype, dims: append([]int64(nil), dims...), buf: raw}, nil
}

// Dims returns the current extent.
func (s *Slab) Dims() []int64 {
	return append([]int64(nil), s.dims...)
}

// Bytes returns the encoded contents.
func (s *Slab) Bytes() []byte {
	return s.buf
}

// Write copies an encoded hyperslab in, growing the first dimension if needed.
func (s *Slab) Write(offset, shape []int64, raw []byte) error {
	if err := CheckHyperslab(s.dims, offset, shape, true); err != nil {
		return err
	}
	if int64(len(raw)) != elements(shape)*int64(s.dtype.Size()) {
		return fmt.Errorf("%w: %d bytes for shape %v", ErrShape, len(raw), shape)
	}
	if end := offset[0] + shape[0]; end > s.dims[0] {
		grown := make([]byte, end*rowElements(s.dims)*int64(s.dtype.Size()))
		copy(grown, s.buf)
		s.buf = grown
		s.dims[0] = end
	}
	forEachRun(s.dims, offset, shape, int64(s.dtype.Size()), func(slabOff, bufOff, n int64) {
		copy(s.buf[slabOff:slabOff+n], raw[bufOff:bufOff+n])
	})
	return nil
}

// Read copies an encoded hyperslab out into raw.
func (s *Slab) Read(offset, shape []int64, raw []byte) error {
	if err := CheckHyperslab(s.dims, offset, shape, false); err != nil {
		return err
	}
	if int64(len(raw)) != elements(shape)*int64(s.dtype.Size()) {
		return fmt.Errorf("%w: %d bytes for shape %v", ErrShape, len(raw), shape)
	}
	forEachRun(s.dims, offset, shape, int64(s.dtype.Size()), func(slabOff, bufOff, n int64) {
		copy(raw[bufOff:bufOff+n], s.buf[slabOff:slabOff+n])
	})
	return nil
}

// CheckHyperslab validates offset and shape against dims. When grow is set
// the first dimension may extend past its current extent.
func CheckHyperslab(dims, offset, shape []int64, grow bool) error {
	if len(dims) == 0 || len(offset) != len(dims) || len(shape) != len(dims) {
		return fmt.Errorf("%w: rank mismatch (dims %v, offset %v, shape %v)", ErrShape, dims, offset, shape)
	}
	for i := range dims {
		if offset[i] < 0 || shape[i] < 0 {
			return fmt.Errorf("%w: negative offset or shape", ErrShape)
		}
		if i == 0 && grow {
			continue
		}
		if offset[i]+shape[i] > dims[i] {
			return fmt.Errorf("%w: dimension %d: %d+%d exceeds %d", ErrShape, i, offset[i], shape[i], dims[i])
		}
	}
	return nil
}

// Elements returns the number of elements described by shape.
func Elements(shape []int64) int64 {
	return elements(shape)
}

func elements(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

func rowElements(dims []int64) int64 {
	return elements(dims[1:])
}

// forEachRun walks the contiguous runs of the last dimension covered by a
// hyperslab, reporting byte offsets into the slab and the packed buffer.
func forEachRun(dims, offset, shape []int64, elem int64, fn func(slabOff, bufOff, n int64)) {
	rank := len(dims)
	for _, n := range shape {
		if n == 0 {
			return
		}
	}

	strides := make([]int64, rank)
	strides[rank-1] = 1
	for i := rank - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * dims[i+1]
	}

	run := shape[rank-1] * elem
	idx := make([]int64, rank-1)
	var bufOff int64
	for {
		off := offset[rank-1]
		for i := 0; i < rank-1; i++ {
			off += (offset[i] + idx[i]) * strides[i]
		}
		fn(off*elem, bufOff, run)
		bufOff += run

		i := rank - 2
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// Len returns the number of elements in a supported slice.
func Len(data any) (int, error) {
	switch v := data.(type) {
	case []int16:
		return len(v), nil
	case []int32:
		return len(v), nil
	case []int64:
		return len(v), nil
	case []uint8:
		return len(v), nil
	case []float32:
		return len(v), nil
	case []float64:
		return len(v), nil
	default:
		return 0, fmt.Errorf("%w: unsupported buffer %T", ErrDType, data)
	}
}

// Encode packs a slice of the given element type little-endian.
func Encode(dtype DType, data any) ([]byte, error) {
	le := binary.LittleEndian
	switch v := data.(type) {
	case []int16:
		if dtype != Int16 {
			break
		}
		b := make([]byte, 2*len(v))
		for i, x := range v {
			le.PutUint16(b[2*i:], uint16(x))
		}
		return b, nil
	case []int32:
		if dtype != Int32 {
			break
		}
		b := make([]byte, 4*len(v))
		for i, x := range v {
			le.PutUint32(b[4*i:], uint32(x))
		}
		return b, nil
	case []int64:
		if dtype != Int64 {
			break
		}
		b := make([]byte, 8*len(v))
		for i, x := range v {
			le.PutUint64(b[8*i:], uint64(x))
		}
		return b, nil
	case []uint8:
		if dtype != Uint8 {
			break
		}
		return append([]byte(nil), v...), nil
	case []float32:
		if dtype != Float32 {
			break
		}
		b := make([]byte, 4*len(v))
		for i, x := range v {
			le.PutUint32(b[4*i:], math.Float32bits(x))
		}
		return b, nil
	case []float64:
		if dtype != Float64 {
			break
		}
		b := make([]byte, 8*len(v))
		for i, x := range v {
			le.PutUint64(b[8*i:], math.Float64bits(x))
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %T for %s dataset", ErrDType, data, dtype)
}

// Decode unpacks little-endian elements into dst.
func Decode(dtype DType, raw []byte, dst any) error {
	n, err := Len(dst)
	if err != nil {
		return err
	}
	if len(raw) != n*dtype.Size() {
		return fmt.Errorf("%w: %d bytes into %d elements of %s", ErrShape, len(raw), n, dtype)
	}

	le := binary.LittleEndian
	switch v := dst.(type) {
	case []int16:
		if dtype != Int16 {
			break
		}
		for i := range v {
			v[i] = int16(le.Uint16(raw[2*i:]))
		}
		return nil
	case []int32:
		if dtype != Int32 {
			break
		}
		for i := range v {
			v[i] = int32(le.Uint32(raw[4*i:]))
		}
		return nil
	case []int64:
		if dtype != Int64 {
			break
		}
		for i := range v {
			v[i] = int64(le.Uint64(raw[8*i:]))
		}
		return nil
	case []uint8:
		if dtype != Uint8 {
			break
		}
		copy(v, raw)
		return nil
	case []float32:
		if dtype != Float32 {
			break
		}
		for i := range v {
			v[i] = math.Float32frombits(le.Uint32(raw[4*i:]))
		}
		return nil
	case []float64:
		if dtype != Float64 {
			break
		}
		for i := range v {
			v[i] = math.Float64frombits(le.Uint64(raw[8*i:]))
		}
		return nil
	}
	return fmt.Errorf("%w: %T for %s dataset", ErrDType, dst, dtype)
}
