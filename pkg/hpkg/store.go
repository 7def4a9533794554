// Copyright (C) 2021 Toitware ApS.
//
// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; version
// 2.1 only.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// The license can be found in the file `LICENSE` in the top level
// directory of this repository.

package hpkg

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is a content-addressed blob store. Blobs are immutable: a key
// either resolves to exactly the bytes it was computed from, or is
// absent.
type Store interface {
	// Put stores b and returns its key. Storing the same bytes twice
	// is a no-op.
	Put(b []byte) (BlobKey, error)
	// Get returns the bytes for key. The second result is false if the
	// key is absent.
	Get(key BlobKey) ([]byte, bool, error)
	// Has returns whether the key is present.
	Has(key BlobKey) (bool, error)
}

// fsStore lays blobs out on disk as <root>/<hh>/<hex> where hh is the
// first two hex digits of the hash. Writes go through a temporary file
// in the same directory followed by a rename, so a reader never sees a
// partially written blob.
type fsStore struct {
	root string
	ui   UI
}

// NewFSStore returns a Store backed by the directory root.
func NewFSStore(root string, ui UI) Store {
	return &fsStore{root: root, ui: ui}
}

func (s *fsStore) blobPath(key BlobKey) string {
	hex := key.Hash.String()
	return filepath.Join(s.root, hex[:2], hex)
}

func (s *fsStore) Put(b []byte) (BlobKey, error) {
	key := NewBlobKey(b)
	p := s.blobPath(key)
	if isFile(p) {
		return key, nil
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return BlobKey{}, err
	}
	tmp, err := os.CreateTemp(dir, "blob-*.part")
	if err != nil {
		return BlobKey{}, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return BlobKey{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return BlobKey{}, err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return BlobKey{}, err
	}
	return key, nil
}

func (s *fsStore) Get(key BlobKey) ([]byte, bool, error) {
	b, err := os.ReadFile(s.blobPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// A blob that no longer hashes to its own name is corrupt.
	if err := key.Verify(fmt.Sprintf("stored blob %s", key), b); err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *fsStore) Has(key BlobKey) (bool, error) {
	_, err := os.Stat(s.blobPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Cache keeps track of where the store, the package index and cached
// snapshot documents live on disk.
type Cache struct {
	ui      UI
	options *cacheOptions
}

type cacheOptions struct {
	// If set, overrides <root>/store as the blob store location.
	storePath *string
	// If set, overrides <root>/index as the package index location.
	indexPath *string
	// If set, overrides <root>/snapshots for cached snapshot documents.
	snapshotCachePath *string
}

func (o *cacheOptions) apply(options ...CacheOption) {
	for _, option := range options {
		option.applyCacheOption(o)
	}
}

// CacheOption defines the optional parameters for NewCache.
type CacheOption interface {
	applyCacheOption(*cacheOptions)
}

// WithStorePath overrides the blob store location.
func WithStorePath(path string) CacheOption {
	return storePath(path)
}

type storePath string

func (p storePath) applyCacheOption(o *cacheOptions) {
	path := string(p)
	o.storePath = &path
}

// WithIndexPath overrides the package index location.
func WithIndexPath(path string) CacheOption {
	return indexPath(path)
}

type indexPath string

func (p indexPath) applyCacheOption(o *cacheOptions) {
	path := string(p)
	o.indexPath = &path
}

// WithSnapshotCachePath overrides the snapshot document cache location.
func WithSnapshotCachePath(path string) CacheOption {
	return snapshotCachePath(path)
}

type snapshotCachePath string

func (p snapshotCachePath) applyCacheOption(o *cacheOptions) {
	path := string(p)
	o.snapshotCachePath = &path
}

// NewCache creates a new cache rooted at root.
func NewCache(root string, ui UI, options ...CacheOption) Cache {
	option := &cacheOptions{}
	option.apply(options...)

	c := Cache{
		options: option,
		ui:      ui,
	}
	if option.storePath == nil {
		p := filepath.Join(root, "store")
		option.storePath = &p
	}
	if option.indexPath == nil {
		p := filepath.Join(root, "index")
		option.indexPath = &p
	}
	if option.snapshotCachePath == nil {
		p := filepath.Join(root, "snapshots")
		option.snapshotCachePath = &p
	}
	return c
}

func (c Cache) StorePath() string {
	return *c.options.storePath
}

func (c Cache) IndexPath() string {
	return *c.options.indexPath
}

func (c Cache) SnapshotCachePath() string {
	return *c.options.snapshotCachePath
}

const readmeContent string = `# Package Store Directory

This directory contains content-addressed package sources and metadata
that have been downloaded by the package management system.

Generally, the package manager is able to download this content again.
It is thus safe to remove the content of this directory.
`

// CreateStoreDir creates the store directory if it doesn't exist yet,
// and writes a README explaining what the directory is for.
func (c Cache) CreateStoreDir() error {
	storeDir := c.StorePath()
	stat, err := os.Stat(storeDir)
	if err == nil && !stat.IsDir() {
		return c.ui.ReportError("Store path already exists but is not a directory: '%s'", storeDir)
	}
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return err
	}
	readmePath := filepath.Join(storeDir, "README.md")
	return os.WriteFile(readmePath, []byte(readmeContent), 0644)
}
