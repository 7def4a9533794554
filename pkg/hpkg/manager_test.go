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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	root := t.TempDir()
	store := NewFSStore(filepath.Join(root, "store"), NullUI)
	return NewManager(NewCache(root, NullUI), store, nil, nil, false, NullUI, nil)
}

func writePackageDir(t *testing.T, dir string) {
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.cabal"), []byte(fooCabal), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Lib.hs"), []byte("module Lib where\n"), 0644))
}

func Test_FetchMutableLocation(t *testing.T) {
	m := testManager(t)
	dir := t.TempDir()
	writePackageDir(t, dir)

	fetched, err := m.FetchLocation(context.Background(), MutableLocation{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, PackageName("foo"), fetched.Name)
	assert.Equal(t, "1.0", fetched.Version.String())
	assert.Equal(t, fetched.Tree.Key(), fetched.TreeKey)
	assert.Equal(t, NewBlobKey([]byte(fooCabal)), fetched.CabalKey)

	// The encoded tree itself is retrievable from the store.
	b, ok, err := m.store.Get(fetched.TreeKey.BlobKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fetched.Tree.Encode(), b)

	t.Run("NotADirectory", func(t *testing.T) {
		_, err := m.FetchLocation(context.Background(), MutableLocation{Dir: filepath.Join(dir, "foo.cabal")})
		assert.Error(t, err)
	})
}

func Test_FetchHackagePinnedWithoutIndex(t *testing.T) {
	// A manager without a package index cannot serve pinned metadata
	// revisions; the failure must come before any download.
	m := testManager(t)

	for _, ident := range []string{
		"foo-1.0@rev:0",
		"foo-1.0@sha256:" + HashBytes([]byte("x")).String(),
	} {
		pir, err := ParsePackageIdentifierRevision(ident)
		require.NoError(t, err)
		_, err = m.FetchLocation(context.Background(), HackageLocation{Ident: pir})
		require.Error(t, err, "ident=%s", ident)
		var ctxErr *ContextError
		assert.ErrorAs(t, err, &ctxErr, "ident=%s", ident)
	}
}

func Test_FetchArchiveLocation(t *testing.T) {
	m := testManager(t)
	archivePath := filepath.Join(t.TempDir(), "foo-1.0.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, buildTarGz(t, releaseFiles), 0644))

	t.Run("LocalFile", func(t *testing.T) {
		fetched, err := m.FetchLocation(context.Background(), ArchiveLocation{
			Archive: Archive{Location: archivePath},
		})
		require.NoError(t, err)
		assert.Equal(t, PackageName("foo"), fetched.Name)
		assert.Equal(t, "1.0", fetched.Version.String())
		// The wrapper directory of the tarball is not part of the tree.
		assert.Contains(t, fetched.Tree, SafeFilePath("foo.cabal"))
	})

	t.Run("MetadataMatch", func(t *testing.T) {
		name := PackageName("foo")
		_, err := m.FetchLocation(context.Background(), ArchiveLocation{
			Archive:  Archive{Location: archivePath},
			Metadata: PackageMetadata{Name: &name},
		})
		assert.NoError(t, err)
	})

	t.Run("MetadataMismatch", func(t *testing.T) {
		name := PackageName("bar")
		_, err := m.FetchLocation(context.Background(), ArchiveLocation{
			Archive:  Archive{Location: archivePath},
			Metadata: PackageMetadata{Name: &name},
		})
		require.Error(t, err)
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "package name", mismatch.Field)
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		size := int64(1)
		_, err := m.FetchLocation(context.Background(), ArchiveLocation{
			Archive: Archive{Location: archivePath, Size: &size},
		})
		require.Error(t, err)
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "archive size", mismatch.Field)
	})

	t.Run("HashMismatch", func(t *testing.T) {
		hash := HashBytes([]byte("wrong"))
		_, err := m.FetchLocation(context.Background(), ArchiveLocation{
			Archive: Archive{Location: archivePath, Hash: &hash},
		})
		require.Error(t, err)
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "archive hash", mismatch.Field)
	})

	t.Run("Deterministic", func(t *testing.T) {
		loc := ArchiveLocation{Archive: Archive{Location: archivePath}}
		first, err := m.FetchLocation(context.Background(), loc)
		require.NoError(t, err)
		second, err := m.FetchLocation(context.Background(), loc)
		require.NoError(t, err)
		assert.Equal(t, first.TreeKey, second.TreeKey)
	})
}
