// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/OpenPSG/nwb/container"
	"github.com/vmihailenco/msgpack/v5"
)

// dataset handles are shared per path so every caller sees the same extent.
type dataset struct {
	f         *File
	path      string
	dtype     container.DType
	dims      []int64
	chunkRows int64
}

func (d *dataset) Path() string { return d.path }

func (d *dataset) DType() container.DType { return d.dtype }

func (d *dataset) Dims() []int64 {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	return append([]int64(nil), d.dims...)
}

func (d *dataset) WriteAt(offset, shape []int64, data any) error {
	raw, err := container.Encode(d.dtype, data)
	if err != nil {
		return err
	}

	d.f.mu.Lock()
	defer d.f.mu.Unlock()

	if d.f.closed {
		return container.ErrClosed
	}
	if err := container.CheckHyperslab(d.dims, offset, shape, true); err != nil {
		return err
	}
	if int64(len(raw)) != container.Elements(shape)*int64(d.dtype.Size()) {
		return fmt.Errorf("%w: %d elements for shape %v", container.ErrShape, len(raw)/d.dtype.Size(), shape)
	}
	if container.Elements(shape) == 0 {
		return nil
	}

	tx, err := d.f.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rowBytes := container.Elements(shape[1:]) * int64(d.dtype.Size())
	end := offset[0] + shape[0]
	for r := offset[0]; r < end; {
		idx := r / d.chunkRows
		pieceEnd := min(end, (idx+1)*d.chunkRows)

		chunk, err := d.loadChunk(tx, idx)
		if err != nil {
			return err
		}

		pieceOffset := append([]int64{r - idx*d.chunkRows}, offset[1:]...)
		pieceShape := append([]int64{pieceEnd - r}, shape[1:]...)
		piece := raw[(r-offset[0])*rowBytes : (pieceEnd-offset[0])*rowBytes]
		if err := chunk.Write(pieceOffset, pieceShape, piece); err != nil {
			return err
		}

		compressed := d.f.encoder.EncodeAll(chunk.Bytes(), nil)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO chunks (path, idx, data) VALUES (?, ?, ?)`, d.path, idx, compressed); err != nil {
			return fmt.Errorf("store chunk %d of %s: %w", idx, d.path, err)
		}

		r = pieceEnd
	}

	dims := d.dims
	if end > d.dims[0] {
		dims = append([]int64{end}, d.dims[1:]...)
		b, err := msgpack.Marshal(dims)
		if err != nil {
			return fmt.Errorf("encode dims: %w", err)
		}
		if _, err := tx.Exec(`UPDATE nodes SET dims = ? WHERE path = ?`, b, d.path); err != nil {
			return fmt.Errorf("update dims of %s: %w", d.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	d.dims = dims
	return nil
}

func (d *dataset) ReadAt(offset, shape []int64, dst any) error {
	n, err := container.Len(dst)
	if err != nil {
		return err
	}

	d.f.mu.Lock()
	defer d.f.mu.Unlock()

	if d.f.closed {
		return container.ErrClosed
	}
	if err := container.CheckHyperslab(d.dims, offset, shape, false); err != nil {
		return err
	}
	if int64(n) != container.Elements(shape) {
		return fmt.Errorf("%w: %d elements for shape %v", container.ErrShape, n, shape)
	}

	raw := make([]byte, n*d.dtype.Size())
	rowBytes := container.Elements(shape[1:]) * int64(d.dtype.Size())
	end := offset[0] + shape[0]
	for r := offset[0]; r < end; {
		idx := r / d.chunkRows
		pieceEnd := min(end, (idx+1)*d.chunkRows)

		chunk, err := d.loadChunk(d.f.db, idx)
		if err != nil {
			return err
		}

		pieceOffset := append([]int64{r - idx*d.chunkRows}, offset[1:]...)
		pieceShape := append([]int64{pieceEnd - r}, shape[1:]...)
		piece := raw[(r-offset[0])*rowBytes : (pieceEnd-offset[0])*rowBytes]
		if err := chunk.Read(pieceOffset, pieceShape, piece); err != nil {
			return err
		}

		r = pieceEnd
	}

	return container.Decode(d.dtype, raw, dst)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

// loadChunk returns chunk idx, or a zeroed chunk if it was never written.
func (d *dataset) loadChunk(q queryRower, idx int64) (*container.Slab, error) {
	dims := append([]int64{d.chunkRows}, d.dims[1:]...)

	var compressed []byte
	err := q.QueryRow(`SELECT data FROM chunks WHERE path = ? AND idx = ?`, d.path, idx).Scan(&compressed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return container.NewSlab(d.dtype, dims), nil
		}
		return nil, fmt.Errorf("load chunk %d of %s: %w", idx, d.path, err)
	}

	raw, err := d.f.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk %d of %s: %w", idx, d.path, err)
	}
	return container.LoadSlab(d.dtype, dims, raw)
}
