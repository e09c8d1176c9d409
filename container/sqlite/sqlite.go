// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package sqlite stores containers in a single SQLite database file.
//
// Groups and datasets are rows of the nodes table. Attributes are msgpack
// encoded. Dataset contents are split along the first dimension into
// fixed-height chunks, each stored zstd compressed.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/OpenPSG/nwb/container"
	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    path        TEXT PRIMARY KEY,
    parent      TEXT NOT NULL,
    kind        INTEGER NOT NULL,
    dtype       INTEGER NOT NULL DEFAULT 0,
    dims        BLOB,
    chunk_rows  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent, kind);

CREATE TABLE IF NOT EXISTS attrs (
    path    TEXT NOT NULL REFERENCES nodes(path),
    name    TEXT NOT NULL,
    value   BLOB NOT NULL,
    PRIMARY KEY (path, name)
);

CREATE TABLE IF NOT EXISTS chunks (
    path    TEXT NOT NULL REFERENCES nodes(path),
    idx     INTEGER NOT NULL,
    data    BLOB NOT NULL,
    PRIMARY KEY (path, idx)
);
`

const (
	kindGroup   = 1
	kindDataset = 2
)

// DefaultChunkBytes is the target uncompressed size of one dataset chunk.
const DefaultChunkBytes = 256 * 1024

// File is a container backed by SQLite.
type File struct {
	db         *sql.DB
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	chunkBytes int64

	mu       sync.Mutex
	datasets map[string]*dataset
	closed   bool
}

// Option configures a File.
type Option func(*File)

// WithChunkBytes sets the target uncompressed chunk size for new datasets.
func WithChunkBytes(n int64) Option {
	return func(f *File) {
		if n > 0 {
			f.chunkBytes = n
		}
	}
}

// Create creates a new container at path. It fails if the file exists.
func Create(p string, opts ...Option) (*File, error) {
	if _, err := os.Stat(p); err == nil {
		return nil, fmt.Errorf("%w: %s", container.ErrExists, p)
	}

	f, err := open(p, opts)
	if err != nil {
		return nil, err
	}

	if _, err := f.db.Exec(schema); err != nil {
		f.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := f.db.Exec(`INSERT INTO nodes (path, parent, kind) VALUES ('/', '/', ?)`, kindGroup); err != nil {
		f.Close()
		return nil, fmt.Errorf("create root group: %w", err)
	}

	return f, nil
}

// Open opens an existing container.
func Open(p string, opts ...Option) (*File, error) {
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("stat container: %w", err)
	}

	f, err := open(p, opts)
	if err != nil {
		return nil, err
	}

	var kind int
	if err := f.db.QueryRow(`SELECT kind FROM nodes WHERE path = '/'`).Scan(&kind); err != nil {
		f.Close()
		return nil, fmt.Errorf("read root group: %w", err)
	}

	return f, nil
}

func open(p string, opts []Option) (*File, error) {
	db, err := sql.Open("sqlite3", p+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Access is serialized by File.mu.
	db.SetMaxOpenConns(1)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	f := &File{
		db:         db,
		encoder:    encoder,
		decoder:    decoder,
		chunkBytes: DefaultChunkBytes,
		datasets:   make(map[string]*dataset),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Close closes the database.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.decoder.Close()
	if err := f.encoder.Close(); err != nil {
		f.db.Close()
		return fmt.Errorf("close zstd encoder: %w", err)
	}
	return f.db.Close()
}

func (f *File) CreateGroup(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return container.ErrClosed
	}
	return f.insertNode(container.Clean(p), kindGroup, 0, nil, 0)
}

func (f *File) ListGroups(p string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, container.ErrClosed
	}
	p = container.Clean(p)
	kind, err := f.nodeKind(p)
	if err != nil {
		return nil, err
	}
	if kind != kindGroup {
		return nil, fmt.Errorf("%w: group %s", container.ErrNotFound, p)
	}

	rows, err := f.db.Query(`SELECT path FROM nodes WHERE parent = ? AND kind = ? AND path != '/' ORDER BY path`, p, kindGroup)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		names = append(names, path.Base(child))
	}
	return names, rows.Err()
}

// attrValue is the stored form of an attribute.
type attrValue struct {
	Kind  uint8   `msgpack:"k"`
	Float float64 `msgpack:"f,omitempty"`
	Int   int64   `msgpack:"i,omitempty"`
	Str   string  `msgpack:"s,omitempty"`
}

const (
	attrFloat = iota + 1
	attrInt
	attrString
)

func (f *File) SetAttr(p, name string, value any) error {
	v, err := container.NormalizeAttr(value)
	if err != nil {
		return err
	}

	var av attrValue
	switch v := v.(type) {
	case float64:
		av = attrValue{Kind: attrFloat, Float: v}
	case int64:
		av = attrValue{Kind: attrInt, Int: v}
	case string:
		av = attrValue{Kind: attrString, Str: v}
	}
	b, err := msgpack.Marshal(&av)
	if err != nil {
		return fmt.Errorf("encode attribute: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return container.ErrClosed
	}
	p = container.Clean(p)
	if _, err := f.nodeKind(p); err != nil {
		return err
	}
	if _, err := f.db.Exec(`INSERT OR REPLACE INTO attrs (path, name, value) VALUES (?, ?, ?)`, p, name, b); err != nil {
		return fmt.Errorf("set attribute: %w", err)
	}
	return nil
}

func (f *File) Attr(p, name string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, container.ErrClosed
	}
	p = container.Clean(p)

	var b []byte
	err := f.db.QueryRow(`SELECT value FROM attrs WHERE path = ? AND name = ?`, p, name).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: attribute %s@%s", container.ErrNotFound, p, name)
		}
		return nil, fmt.Errorf("get attribute: %w", err)
	}

	var av attrValue
	if err := msgpack.Unmarshal(b, &av); err != nil {
		return nil, fmt.Errorf("decode attribute %s@%s: %w", p, name, err)
	}
	switch av.Kind {
	case attrFloat:
		return av.Float, nil
	case attrInt:
		return av.Int, nil
	case attrString:
		return av.Str, nil
	default:
		return nil, fmt.Errorf("%w: attribute %s@%s has kind %d", container.ErrDType, p, name, av.Kind)
	}
}

func (f *File) CreateDataset(p string, dtype container.DType, dims []int64) (container.Dataset, error) {
	if dtype.Size() == 0 || len(dims) == 0 {
		return nil, fmt.Errorf("%w: dataset %s of %s with dims %v", container.ErrShape, p, dtype, dims)
	}
	for _, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in %v", container.ErrShape, dims)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, container.ErrClosed
	}
	p = container.Clean(p)

	rowBytes := container.Elements(dims[1:]) * int64(dtype.Size())
	chunkRows := f.chunkBytes / max(rowBytes, 1)
	chunkRows = max(chunkRows, 1)

	d := &dataset{f: f, path: p, dtype: dtype, dims: append([]int64(nil), dims...), chunkRows: chunkRows}
	b, err := msgpack.Marshal(d.dims)
	if err != nil {
		return nil, fmt.Errorf("encode dims: %w", err)
	}
	if err := f.insertNode(p, kindDataset, dtype, b, chunkRows); err != nil {
		return nil, err
	}

	f.datasets[p] = d
	return d, nil
}

func (f *File) OpenDataset(p string) (container.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, container.ErrClosed
	}
	p = container.Clean(p)
	if d, ok := f.datasets[p]; ok {
		return d, nil
	}

	var (
		kind      int
		dtype     uint8
		rawDims   []byte
		chunkRows int64
	)
	err := f.db.QueryRow(`SELECT kind, dtype, dims, chunk_rows FROM nodes WHERE path = ?`, p).
		Scan(&kind, &dtype, &rawDims, &chunkRows)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: dataset %s", container.ErrNotFound, p)
		}
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	if kind != kindDataset {
		return nil, fmt.Errorf("%w: dataset %s", container.ErrNotFound, p)
	}

	d := &dataset{f: f, path: p, dtype: container.DType(dtype), chunkRows: chunkRows}
	if err := msgpack.Unmarshal(rawDims, &d.dims); err != nil {
		return nil, fmt.Errorf("decode dims of %s: %w", p, err)
	}
	if d.dtype.Size() == 0 || len(d.dims) == 0 || d.chunkRows <= 0 {
		return nil, fmt.Errorf("%w: dataset %s has dtype %s, dims %v", container.ErrShape, p, d.dtype, d.dims)
	}

	f.datasets[p] = d
	return d, nil
}

func (f *File) nodeKind(p string) (int, error) {
	var kind int
	if err := f.db.QueryRow(`SELECT kind FROM nodes WHERE path = ?`, p).Scan(&kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", container.ErrNotFound, p)
		}
		return 0, fmt.Errorf("get node: %w", err)
	}
	return kind, nil
}

func (f *File) insertNode(p string, kind int, dtype container.DType, dims []byte, chunkRows int64) error {
	if _, err := f.nodeKind(p); err == nil {
		return fmt.Errorf("%w: %s", container.ErrExists, p)
	}
	parent := container.Parent(p)
	parentKind, err := f.nodeKind(parent)
	if err != nil || parentKind != kindGroup {
		return fmt.Errorf("%w: parent group of %s", container.ErrNotFound, p)
	}

	_, err = f.db.Exec(`INSERT INTO nodes (path, parent, kind, dtype, dims, chunk_rows) VALUES (?, ?, ?, ?, ?, ?)`,
		p, parent, kind, uint8(dtype), dims, chunkRows)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}
