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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_FSStore(t *testing.T) {
	t.Run("PutGet", func(t *testing.T) {
		store := NewFSStore(t.TempDir(), NullUI)
		b := []byte("some content")

		key, err := store.Put(b)
		require.NoError(t, err)
		assert.Equal(t, NewBlobKey(b), key)

		got, ok, err := store.Get(key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, b, got)

		has, err := store.Has(key)
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		store := NewFSStore(t.TempDir(), NullUI)
		b := []byte("twice")
		k1, err := store.Put(b)
		require.NoError(t, err)
		k2, err := store.Put(b)
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
	})

	t.Run("Absent", func(t *testing.T) {
		store := NewFSStore(t.TempDir(), NullUI)
		key := NewBlobKey([]byte("never stored"))

		_, ok, err := store.Get(key)
		require.NoError(t, err)
		assert.False(t, ok)

		has, err := store.Has(key)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("CorruptBlob", func(t *testing.T) {
		root := t.TempDir()
		store := NewFSStore(root, NullUI)
		key, err := store.Put([]byte("original"))
		require.NoError(t, err)

		// Damage the blob on disk; Get must refuse to return it.
		hex := key.Hash.String()
		p := filepath.Join(root, hex[:2], hex)
		require.NoError(t, os.WriteFile(p, []byte("tampered"), 0644))

		_, _, err = store.Get(key)
		require.Error(t, err)
		var mismatch *MismatchError
		assert.ErrorAs(t, err, &mismatch)
	})
}

func Test_Cache(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		root := t.TempDir()
		cache := NewCache(root, NullUI)
		assert.Equal(t, filepath.Join(root, "store"), cache.StorePath())
		assert.Equal(t, filepath.Join(root, "index"), cache.IndexPath())
		assert.Equal(t, filepath.Join(root, "snapshots"), cache.SnapshotCachePath())
	})

	t.Run("Overrides", func(t *testing.T) {
		root := t.TempDir()
		cache := NewCache(root, NullUI,
			WithStorePath("/elsewhere/store"),
			WithIndexPath("/elsewhere/index"))
		assert.Equal(t, "/elsewhere/store", cache.StorePath())
		assert.Equal(t, "/elsewhere/index", cache.IndexPath())
		assert.Equal(t, filepath.Join(root, "snapshots"), cache.SnapshotCachePath())
	})

	t.Run("CreateStoreDir", func(t *testing.T) {
		root := t.TempDir()
		cache := NewCache(root, NullUI)
		require.NoError(t, cache.CreateStoreDir())
		assert.DirExists(t, cache.StorePath())
		assert.FileExists(t, filepath.Join(cache.StorePath(), "README.md"))

		// Second call is a no-op and must not fail.
		require.NoError(t, cache.CreateStoreDir())
	})
}
